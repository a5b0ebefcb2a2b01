package domain

import (
	"context"
	"time"
)

// EntityEvent is emitted when a tracked entity is added or removed.
type EntityEvent struct {
	Timestamp    time.Time  `json:"timestamp"`
	Kind         EntityKind `json:"kind"`
	Handle       Handle     `json:"handle"`
	PerceptionID int        `json:"perception_id"`
	Linked       bool       `json:"linked,omitempty"`
}

// CommandEvent is emitted when a command leaves the validating state and
// again when its action resolves.
type CommandEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Verb      string        `json:"verb"`
	ActionID  string        `json:"action_id,omitempty"`
	State     CommandState  `json:"state"`
	Code      string        `json:"code,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// PhaseEvent is emitted after every input or output phase.
type PhaseEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Phase     string        `json:"phase"`
	Cycle     uint64        `json:"cycle"`
	Duration  time.Duration `json:"duration"`
	Writes    WriteStats    `json:"writes"`
}

// WriteStats counts working memory operations.
type WriteStats struct {
	Creates  int `json:"creates"`
	Updates  int `json:"updates"`
	Destroys int `json:"destroys"`
}

// Sub returns the operations performed since prev.
func (s WriteStats) Sub(prev WriteStats) WriteStats {
	return WriteStats{
		Creates:  s.Creates - prev.Creates,
		Updates:  s.Updates - prev.Updates,
		Destroys: s.Destroys - prev.Destroys,
	}
}

// Total returns the sum of all operations.
func (s WriteStats) Total() int {
	return s.Creates + s.Updates + s.Destroys
}

// LifecycleHooks defines callbacks for bridge observability.
// Hooks run while the synchronization lock is held and must not call back
// into the bridge.
type LifecycleHooks struct {
	OnEntityAdded    func(context.Context, *EntityEvent)
	OnEntityRemoved  func(context.Context, *EntityEvent)
	OnCommand        func(context.Context, *CommandEvent)
	OnActionResolved func(context.Context, *CommandEvent)
	OnPhase          func(context.Context, *PhaseEvent)
}

// Phases.
const (
	PhaseInput  = "input"
	PhaseOutput = "output"
)
