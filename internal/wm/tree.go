package wm

import (
	"fmt"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// Tree mirrors the part of the working memory the bridge writes. It indexes
// every node by dotted path and forwards every mutation to the memory.
//
// A Tree is not safe for concurrent use; callers hold the synchronization lock.
type Tree struct {
	mem   ports.WorkingMemory
	index map[string]*Node
	stats domain.WriteStats
}

// NewTree creates an empty tree over mem.
func NewTree(mem ports.WorkingMemory) *Tree {
	return &Tree{
		mem:   mem,
		index: make(map[string]*Node),
	}
}

// Attach adopts a node the bridge did not create (the input link, a command
// node) so that attributes can be added under it. The path must be unique.
func (t *Tree) Attach(path string, ref domain.Ref) *Node {
	if _, exists := t.index[path]; exists {
		domain.Violation("attach", path, "path already attached")
	}
	n := &Node{name: path, path: path, ref: ref, external: true, live: true}
	t.index[path] = n
	return n
}

// Detach forgets an adopted node and everything under it without touching
// the working memory. The owner of the node is responsible for removing it.
func (t *Tree) Detach(n *Node) {
	if !n.external {
		domain.Violation("detach", n.path, "node was created by the bridge")
	}
	t.forget(n)
}

func (t *Tree) forget(n *Node) {
	for _, c := range n.children {
		t.forget(c)
	}
	delete(t.index, n.path)
	n.live = false
}

// Lookup returns the live node at path.
func (t *Tree) Lookup(path string) (*Node, bool) {
	n, ok := t.index[path]
	return n, ok
}

// Len returns the number of indexed nodes, adopted roots included.
func (t *Tree) Len() int { return len(t.index) }

// Stats returns the cumulative write counts.
func (t *Tree) Stats() domain.WriteStats { return t.stats }

func (t *Tree) checkParent(op string, parent *Node, name string) string {
	if parent == nil || !parent.live {
		domain.Violation(op, name, "parent is not live")
	}
	if parent.terminal {
		domain.Violation(op, joinPath(parent.path, name), "terminal attribute cannot have children")
	}
	path := joinPath(parent.path, name)
	if _, dup := parent.children[name]; dup {
		domain.Violation(op, path, "duplicate attribute name")
	}
	if _, dup := t.index[path]; dup {
		domain.Violation(op, path, "path already materialized")
	}
	return path
}

// AddBranch creates an empty attribute with children. A duplicate name under
// parent panics with *domain.InvariantError.
func (t *Tree) AddBranch(parent *Node, name string) (*Node, error) {
	path := t.checkParent("add-branch", parent, name)

	ref, err := t.mem.CreateBranch(parent.ref, name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	n := &Node{name: name, path: path, ref: ref, parent: parent, live: true}
	parent.addChild(n)
	t.index[path] = n
	t.stats.Creates++
	return n, nil
}

// AddLeaf creates a terminal attribute. A duplicate name under parent panics
// with *domain.InvariantError.
func (t *Tree) AddLeaf(parent *Node, name string, v domain.Value) (*Node, error) {
	path := t.checkParent("add-leaf", parent, name)

	ref, err := t.mem.CreateLeaf(parent.ref, name, v)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	n := &Node{name: name, path: path, ref: ref, parent: parent, terminal: true, value: v, live: true}
	parent.addChild(n)
	t.index[path] = n
	t.stats.Creates++
	return n, nil
}

// Set writes v to a terminal node if it differs from the current value and
// reports whether a write happened.
func (t *Tree) Set(n *Node, v domain.Value) (bool, error) {
	if !n.live {
		domain.Violation("set", n.path, "node is not live")
	}
	if !n.terminal {
		domain.Violation("set", n.path, "sub-tree attribute cannot hold a value")
	}
	if n.value.Equal(v) {
		return false, nil
	}
	if err := t.mem.UpdateLeaf(n.ref, v); err != nil {
		return false, fmt.Errorf("update %s: %w", n.path, err)
	}
	n.value = v
	t.stats.Updates++
	return true, nil
}

// Put creates or updates the terminal child name of parent.
func (t *Tree) Put(parent *Node, name string, v domain.Value) (*Node, error) {
	if c := parent.Child(name); c != nil {
		_, err := t.Set(c, v)
		return c, err
	}
	return t.AddLeaf(parent, name, v)
}

// Destroy removes n and its subtree from the working memory, children
// before parents. Destroying a node that is not live panics.
func (t *Tree) Destroy(n *Node) error {
	if n == nil || !n.live {
		path := ""
		if n != nil {
			path = n.path
		}
		domain.Violation("destroy", path, "node was never added or is already destroyed")
	}
	if n.external {
		domain.Violation("destroy", n.path, "adopted node is owned elsewhere")
	}
	if err := t.destroy(n); err != nil {
		return err
	}
	if n.parent != nil {
		n.parent.removeChild(n.name)
	}
	return nil
}

func (t *Tree) destroy(n *Node) error {
	for _, name := range append([]string(nil), n.order...) {
		c := n.children[name]
		if err := t.destroy(c); err != nil {
			return err
		}
		n.removeChild(name)
	}
	if err := t.mem.Destroy(n.ref); err != nil {
		return fmt.Errorf("destroy %s: %w", n.path, err)
	}
	delete(t.index, n.path)
	n.live = false
	t.stats.Destroys++
	return nil
}

// Clear destroys every child of n, leaving n itself in place.
func (t *Tree) Clear(n *Node) error {
	for _, c := range n.Children() {
		if err := t.Destroy(c); err != nil {
			return err
		}
	}
	return nil
}
