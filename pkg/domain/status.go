package domain

import (
	"fmt"
	"strings"
)

// ActionStatus is the value of a command's "status" attribute.
type ActionStatus string

const (
	StatusRunning  ActionStatus = "running"
	StatusComplete ActionStatus = "complete"
	StatusFailed   ActionStatus = "failed"
)

// CommandState is the lifecycle state of a command inside the dispatcher.
type CommandState string

const (
	CommandIssued     CommandState = "issued"
	CommandValidating CommandState = "validating"
	CommandRejected   CommandState = "rejected"
	CommandRunning    CommandState = "running"
	CommandComplete   CommandState = "complete"
	CommandFailed     CommandState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s CommandState) Terminal() bool {
	switch s {
	case CommandRejected, CommandComplete, CommandFailed:
		return true
	}
	return false
}

// Status maps a command state to the status written into working memory.
// Issued and validating commands have no status yet.
func (s CommandState) Status() (ActionStatus, bool) {
	switch s {
	case CommandRunning:
		return StatusRunning, true
	case CommandComplete:
		return StatusComplete, true
	case CommandRejected, CommandFailed:
		return StatusFailed, true
	}
	return "", false
}

// Failure codes written under a failed command.
const (
	CodeMissingParameter = "missing-parameter"
	CodeInvalidParameter = "invalid-parameter"
	CodeUnknownTarget    = "unknown-target"
	CodeVerbBusy         = "verb-busy"
	CodeStartFailed      = "start-failed"
	CodeAborted          = "aborted"
	CodeUnknown          = "unknown"
)

// Attribute names the dispatcher writes under a command.
const (
	AttrStatus        = "status"
	AttrFailureCode   = "failure-code"
	AttrFailureReason = "failure-reason"
)

// Color is a light color accepted by the lighting commands.
type Color string

const (
	ColorRed   Color = "red"
	ColorBlue  Color = "blue"
	ColorGreen Color = "green"
	ColorWhite Color = "white"
	ColorOff   Color = "off"
)

// Colors lists the accepted colors.
var Colors = []Color{ColorRed, ColorBlue, ColorGreen, ColorWhite, ColorOff}

// ParseColor validates a color name.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Colors {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown color %q", s)
}
