package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// ChainHooks combines several hook sets. Each callback runs the non-nil
// callbacks of every set in order.
func ChainHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnEntityAdded = chain(out.OnEntityAdded, h.OnEntityAdded)
		out.OnEntityRemoved = chain(out.OnEntityRemoved, h.OnEntityRemoved)
		out.OnCommand = chain(out.OnCommand, h.OnCommand)
		out.OnActionResolved = chain(out.OnActionResolved, h.OnActionResolved)
		out.OnPhase = chain(out.OnPhase, h.OnPhase)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LogHooks writes an audit record for every command outcome at Info level
// and every phase at Debug level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCommand: func(ctx context.Context, e *domain.CommandEvent) {
			logger.InfoContext(ctx, "command",
				"verb", e.Verb,
				"state", e.State,
				"code", e.Code,
				"reason", e.Reason,
			)
		},
		OnActionResolved: func(ctx context.Context, e *domain.CommandEvent) {
			logger.InfoContext(ctx, "action_resolved",
				"verb", e.Verb,
				"action_id", e.ActionID,
				"state", e.State,
				"duration", e.Duration,
			)
		},
		OnPhase: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.DebugContext(ctx, "phase",
				"phase", e.Phase,
				"cycle", e.Cycle,
				"writes", e.Writes.Total(),
			)
		},
	}
}
