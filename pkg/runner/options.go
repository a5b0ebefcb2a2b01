package runner

import (
	"log/slog"
	"time"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithPeriod sets the minimum cycle duration.
func WithPeriod(d time.Duration) Option {
	return func(r *Runner) {
		r.Period = d
	}
}

// WithMaxCycles stops the runner after n cycles.
func WithMaxCycles(n uint64) Option {
	return func(r *Runner) {
		r.MaxCycles = n
	}
}

// WithDrainCycles bounds the input phases run after the engine halts.
func WithDrainCycles(n int) Option {
	return func(r *Runner) {
		r.DrainCycles = n
	}
}

// WithOnCycle registers a callback run after every input phase.
func WithOnCycle(fn CycleFunc) Option {
	return func(r *Runner) {
		r.OnCycle = fn
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}
