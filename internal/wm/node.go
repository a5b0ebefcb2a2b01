package wm

import (
	"sort"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// Node is one attribute in the working memory tree, holding either a
// terminal value or named children. Nodes are owned by a Tree.
type Node struct {
	name     string
	path     string
	ref      domain.Ref
	parent   *Node
	terminal bool
	value    domain.Value
	children map[string]*Node
	order    []string

	// external nodes were created by someone else and only adopted.
	external bool
	live     bool
}

func (n *Node) Name() string        { return n.name }
func (n *Node) Path() string        { return n.path }
func (n *Node) Ref() domain.Ref     { return n.ref }
func (n *Node) Parent() *Node       { return n.parent }
func (n *Node) IsTerminal() bool    { return n.terminal }
func (n *Node) Value() domain.Value { return n.value }
func (n *Node) Live() bool          { return n.live }

// Child returns the direct child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	return n.children[name]
}

// Children returns the direct children sorted by name.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, name := range n.sortedNames() {
		out = append(out, n.children[name])
	}
	return out
}

// Len returns the number of direct children.
func (n *Node) Len() int { return len(n.children) }

func (n *Node) sortedNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Node) addChild(c *Node) {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	n.children[c.name] = c
	n.order = append(n.order, c.name)
}

func (n *Node) removeChild(name string) {
	delete(n.children, name)
	for i, o := range n.order {
		if o == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			return
		}
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// Snapshot copies the subtree rooted at n.
func (n *Node) Snapshot() *domain.SnapshotNode {
	out := &domain.SnapshotNode{Name: n.name, Ref: n.ref}
	if n.terminal {
		v := n.value
		out.Value = &v
		return out
	}
	for _, c := range n.Children() {
		out.Children = append(out.Children, c.Snapshot())
	}
	return out
}
