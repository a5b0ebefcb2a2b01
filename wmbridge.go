package wmbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/wmbridge/internal/runtime"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// Units is the unit system command parameters arrive in.
type Units = runtime.Units

// Unit systems.
const (
	UnitsMillimeters = runtime.UnitsMillimeters
	UnitsMeters      = runtime.UnitsMeters
)

// ReappearPolicy decides what an entity that comes back starts with.
type ReappearPolicy = runtime.ReappearPolicy

// Reappearance policies.
const (
	ReappearFresh   = runtime.ReappearFresh
	ReappearRestore = runtime.ReappearRestore
)

// Stats is a point-in-time view of the bridge counters.
type Stats = runtime.Stats

// Bridge is the high-level entry point of the library. It keeps the input
// tree of a symbolic working memory in sync with a robot's world model and
// turns commands on the output tree into robot actions.
type Bridge struct {
	engine *runtime.Engine
	cfg    runtime.Config
}

var _ ports.Bridge = (*Bridge)(nil)

// New wires a bridge over a working memory, a robot and its sensor source.
func New(mem ports.WorkingMemory, robot ports.Robot, perception ports.Perception, opts ...Option) (*Bridge, error) {
	b := &Bridge{}
	for _, opt := range opts {
		opt(b)
	}

	// Ensure logger is initialized so the runtime default is not overwritten with nil
	if b.cfg.Logger == nil {
		b.cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	engine, err := runtime.NewEngine(mem, robot, perception, b.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}
	b.engine = engine
	return b, nil
}

// Agent returns the agent name the bridge is keyed by.
func (b *Bridge) Agent() string { return b.engine.Agent() }

// InputPhase refreshes the input tree from the latest perception and polls
// pending actions. Call it once per decision cycle, before the reasoning step.
func (b *Bridge) InputPhase(ctx context.Context) error {
	return b.engine.InputPhase(ctx)
}

// OutputPhase dispatches the commands the reasoning step placed on the output tree.
func (b *Bridge) OutputPhase(ctx context.Context, commands []ports.CommandNode) error {
	return b.engine.OutputPhase(ctx, commands)
}

// Notify queues an appearance or disappearance event from the sensor
// subsystem. It never blocks.
func (b *Bridge) Notify(ev domain.PerceptionEvent) error {
	return b.engine.Notify(ev)
}

// Link redirects src onto dest from the next input phase on.
func (b *Bridge) Link(kind domain.EntityKind, src, dest domain.Handle) error {
	return b.engine.Link(kind, src, dest)
}

// Stop aborts every pending action.
func (b *Bridge) Stop(ctx context.Context) error {
	return b.engine.Stop(ctx)
}

// Close stops pending actions and removes every tracked entity from the input tree.
func (b *Bridge) Close(ctx context.Context) error {
	return b.engine.Close(ctx)
}

// Snapshot returns the input tree as of the last input phase.
func (b *Bridge) Snapshot() *domain.Snapshot {
	return b.engine.Snapshot()
}

// Entities returns the tracked handles of a kind as of the last input phase.
func (b *Bridge) Entities(kind domain.EntityKind) []domain.Handle {
	return b.engine.Entities(kind)
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() Stats {
	return b.engine.Stats()
}

// Verbs lists every command verb the bridge understands.
func Verbs() []string {
	return runtime.Verbs()
}

// ParseUnits validates a unit system name.
func ParseUnits(s string) (Units, error) {
	return runtime.ParseUnits(s)
}

// ParseReappearPolicy validates a reappearance policy name.
func ParseReappearPolicy(s string) (ReappearPolicy, error) {
	return runtime.ParseReappearPolicy(s)
}
