package domain

import (
	"strings"
	"time"
)

// Ref is the working memory's own reference to an attribute node.
type Ref string

// Snapshot is a point-in-time copy of the bridge's input tree.
type Snapshot struct {
	Agent string        `json:"agent"`
	Cycle uint64        `json:"cycle"`
	Taken time.Time     `json:"taken"`
	Root  *SnapshotNode `json:"root"`
}

// SnapshotNode is one attribute node inside a Snapshot. Terminal nodes carry
// a Value and no children.
type SnapshotNode struct {
	Name     string          `json:"name"`
	Ref      Ref             `json:"ref,omitempty"`
	Value    *Value          `json:"value,omitempty"`
	Children []*SnapshotNode `json:"children,omitempty"`
}

// Child returns the direct child with the given name.
func (n *SnapshotNode) Child(name string) *SnapshotNode {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Lookup resolves a dotted path relative to the snapshot root.
func (s *Snapshot) Lookup(path string) *SnapshotNode {
	if s == nil || s.Root == nil {
		return nil
	}
	n := s.Root
	if path == "" {
		return n
	}
	for _, part := range strings.Split(path, ".") {
		n = n.Child(part)
		if n == nil {
			return nil
		}
	}
	return n
}

// Flatten returns every terminal value keyed by dotted path.
func (s *Snapshot) Flatten() map[string]Value {
	out := make(map[string]Value)
	if s == nil || s.Root == nil {
		return out
	}
	var walk func(prefix string, n *SnapshotNode)
	walk = func(prefix string, n *SnapshotNode) {
		for _, c := range n.Children {
			p := c.Name
			if prefix != "" {
				p = prefix + "." + c.Name
			}
			if c.Value != nil {
				out[p] = *c.Value
				continue
			}
			walk(p, c)
		}
	}
	walk("", s.Root)
	return out
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Root = s.Root.clone()
	return &out
}

func (n *SnapshotNode) clone() *SnapshotNode {
	if n == nil {
		return nil
	}
	out := &SnapshotNode{Name: n.Name, Ref: n.Ref}
	if n.Value != nil {
		v := *n.Value
		out.Value = &v
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.clone())
	}
	return out
}
