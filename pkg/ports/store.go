package ports

import (
	"context"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// SnapshotStore persists the latest input tree snapshot per agent so that
// operators and other processes can inspect the bridge.
type SnapshotStore interface {
	// Save persists the snapshot under the given agent name.
	Save(ctx context.Context, agent string, snap *domain.Snapshot) error

	// Load retrieves the latest snapshot for an agent.
	// Returns domain.ErrSnapshotNotFound if none exists.
	Load(ctx context.Context, agent string) (*domain.Snapshot, error)

	// Delete removes the snapshot of an agent.
	Delete(ctx context.Context, agent string) error

	// List returns the agents with a stored snapshot.
	List(ctx context.Context) ([]string, error)
}
