package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand is returned when a command verb has no handler.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrQueueFull is returned when the perception event queue cannot accept more events.
	ErrQueueFull = errors.New("event queue full")

	// ErrSnapshotNotFound is returned when no snapshot exists for an agent.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrUnknownHandle is returned when a handle is not tracked.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrLockAcquire is returned when the synchronization lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire synchronization lock")
)

// ValidationError rejects a single command. Code is written as the
// command's failure-code and Reason as its failure-reason.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Rejectf builds a ValidationError.
func Rejectf(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// InvariantError reports corruption of the tree shared with the reasoning
// engine. It is raised with panic and never recovered by the bridge.
type InvariantError struct {
	Op   string
	Path string
	Msg  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("wm invariant violated: %s %s: %s", e.Op, e.Path, e.Msg)
}

// Violation panics with an InvariantError.
func Violation(op, path, format string, args ...any) {
	panic(&InvariantError{Op: op, Path: path, Msg: fmt.Sprintf(format, args...)})
}
