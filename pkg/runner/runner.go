package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// DefaultDrainCycles bounds the input phases run after the reasoning
// engine halts, while actions are still pending.
const DefaultDrainCycles = 50

// ErrHalt is returned by a reasoning engine that has nothing more to do.
// Commands returned alongside it are still dispatched.
var ErrHalt = errors.New("reasoning engine halted")

// Bridge is what the runner drives each cycle.
type Bridge interface {
	ports.Bridge
	Stats() wmbridge.Stats
}

// CycleFunc observes the input tree after every input phase.
type CycleFunc func(ctx context.Context, cycle uint64, snap *domain.Snapshot)

// Runner runs decision cycles: input phase, reasoning step, output phase.
type Runner struct {
	// Period is the minimum duration of a cycle. Zero runs cycles back to back.
	Period time.Duration

	// MaxCycles stops the loop after that many cycles. Zero is unbounded.
	MaxCycles uint64

	// DrainCycles bounds the input phases run after ErrHalt until no action is pending.
	DrainCycles int

	// OnCycle, if set, is called after every input phase.
	OnCycle CycleFunc

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	bridge Bridge
	engine ports.ReasoningEngine
}

// NewRunner creates a runner over a bridge and a reasoning engine.
func NewRunner(bridge Bridge, engine ports.ReasoningEngine, opts ...Option) *Runner {
	r := &Runner{
		DrainCycles: DefaultDrainCycles,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		bridge:      bridge,
		engine:      engine,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until ctx is done, MaxCycles is reached, or the engine halts and
// pending actions drain. Pending actions are stopped before returning.
// It returns the number of cycles run.
func (r *Runner) Run(ctx context.Context) (uint64, error) {
	var ticker *time.Ticker
	if r.Period > 0 {
		ticker = time.NewTicker(r.Period)
		defer ticker.Stop()
	}

	var cycle uint64
	defer r.shutdown(ctx)

	for {
		if r.MaxCycles > 0 && cycle >= r.MaxCycles {
			r.Logger.Debug("runner: cycle limit reached", "cycles", cycle)
			return cycle, nil
		}
		if err := ctx.Err(); err != nil {
			return cycle, nil
		}
		cycle++

		if err := r.input(ctx, cycle); err != nil || ctx.Err() != nil {
			return cycle, err
		}

		commands, err := r.engine.Step(ctx, cycle)
		halt := errors.Is(err, ErrHalt)
		if err != nil && !halt {
			if ctx.Err() != nil {
				return cycle, nil
			}
			return cycle, fmt.Errorf("reasoning step %d: %w", cycle, err)
		}

		if err := r.bridge.OutputPhase(ctx, commands); err != nil {
			if ctx.Err() != nil {
				return cycle, nil
			}
			return cycle, fmt.Errorf("output phase %d: %w", cycle, err)
		}

		if halt {
			r.Logger.Debug("runner: engine halted", "cycle", cycle)
			return r.drain(ctx, ticker, cycle)
		}

		if !wait(ctx, ticker) {
			return cycle, nil
		}
	}
}

func (r *Runner) input(ctx context.Context, cycle uint64) error {
	if err := r.bridge.InputPhase(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("input phase %d: %w", cycle, err)
	}
	if r.OnCycle != nil {
		r.OnCycle(ctx, cycle, r.bridge.Snapshot())
	}
	return nil
}

// drain keeps running input phases so pending actions resolve and their
// status reaches working memory.
func (r *Runner) drain(ctx context.Context, ticker *time.Ticker, cycle uint64) (uint64, error) {
	for i := 0; i < r.DrainCycles && r.bridge.Stats().Pending > 0; i++ {
		if !wait(ctx, ticker) {
			return cycle, nil
		}
		cycle++
		if err := r.input(ctx, cycle); err != nil {
			return cycle, err
		}
	}
	if pending := r.bridge.Stats().Pending; pending > 0 {
		r.Logger.Warn("runner: actions still pending after drain", "pending", pending)
	}
	return cycle, nil
}

func (r *Runner) shutdown(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.bridge.Stop(stopCtx); err != nil {
		r.Logger.Error("runner: stop pending actions", "error", err)
	}
}

func wait(ctx context.Context, ticker *time.Ticker) bool {
	if ticker == nil {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
		return true
	}
}
