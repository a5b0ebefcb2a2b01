package wmbridge

import (
	"log/slog"
	"time"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// Option defines a functional option for configuring the Bridge.
type Option func(*Bridge)

// WithAgentName sets the name the bridge is keyed by in logs, locks and
// persisted snapshots (default: "default").
func WithAgentName(name string) Option {
	return func(b *Bridge) {
		b.cfg.Agent = name
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.cfg.Logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Bridge) {
		b.cfg.Hooks = hooks
	}
}

// WithDistributedLocker serializes synchronization passes across replicas
// that drive the same agent.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(b *Bridge) {
		b.cfg.Locker = locker
		b.cfg.LockTTL = ttl
	}
}

// WithSnapshotStore persists a snapshot of the input tree after every input phase.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(b *Bridge) {
		b.cfg.Store = store
	}
}

// WithUnits sets the unit system of command parameters (default: millimeters).
func WithUnits(u Units) Option {
	return func(b *Bridge) {
		b.cfg.Units = u
	}
}

// WithReappearPolicy sets what a returning entity starts with. retainLimit
// bounds how many departed entities are remembered under ReappearRestore.
func WithReappearPolicy(p ReappearPolicy, retainLimit int) Option {
	return func(b *Bridge) {
		b.cfg.Reappear = p
		b.cfg.RetainLimit = retainLimit
	}
}

// WithCommands restricts the accepted command verbs. Other verbs are ignored.
func WithCommands(verbs ...string) Option {
	return func(b *Bridge) {
		b.cfg.Verbs = verbs
	}
}

// WithEventQueueSize sets the capacity of the perception event queue.
func WithEventQueueSize(n int) Option {
	return func(b *Bridge) {
		b.cfg.EventQueue = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.cfg.Clock = now
	}
}
