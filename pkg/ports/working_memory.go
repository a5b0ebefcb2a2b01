package ports

import "github.com/aretw0/wmbridge/pkg/domain"

// WorkingMemory is the symbolic tree consumed by the reasoning engine.
// Every node is addressed by the reference the memory returned when it was
// created. Implementations are not required to be safe for concurrent use;
// the bridge serializes all calls under its synchronization lock.
type WorkingMemory interface {
	// InputRoot returns the root the bridge writes perceptions under.
	InputRoot() domain.Ref

	// CreateBranch creates an empty attribute node with children.
	CreateBranch(parent domain.Ref, attr string) (domain.Ref, error)

	// CreateLeaf creates a terminal attribute.
	CreateLeaf(parent domain.Ref, attr string, v domain.Value) (domain.Ref, error)

	// UpdateLeaf replaces the value of a terminal attribute.
	UpdateLeaf(ref domain.Ref, v domain.Value) error

	// Destroy removes a node. The bridge always destroys children before
	// their parent.
	Destroy(ref domain.Ref) error
}

// CommandNode is a command placed on the output tree by the reasoning engine.
type CommandNode interface {
	// Ref identifies the command node; status attributes are written under it.
	Ref() domain.Ref

	// Verb is the command name, e.g. "drive-forward".
	Verb() string

	// Params returns the command's parameters. Values are numbers or strings;
	// booleans may arrive as strings.
	Params() map[string]any
}
