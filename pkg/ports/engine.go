package ports

import (
	"context"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// Bridge is the driving port used by runners and adapters.
type Bridge interface {
	// InputPhase refreshes the input tree and polls pending actions.
	InputPhase(ctx context.Context) error

	// OutputPhase dispatches the commands emitted by the reasoning engine.
	OutputPhase(ctx context.Context, commands []CommandNode) error

	// Link redirects a source handle onto a destination handle at the next input phase.
	Link(kind domain.EntityKind, src, dest domain.Handle) error

	// Stop aborts every pending action.
	Stop(ctx context.Context) error

	// Snapshot returns the latest input tree snapshot.
	Snapshot() *domain.Snapshot
}

// ReasoningEngine is the consumer of the working memory. Step runs one
// decision cycle and returns the commands it placed on the output tree.
type ReasoningEngine interface {
	Step(ctx context.Context, cycle uint64) ([]CommandNode, error)
}
