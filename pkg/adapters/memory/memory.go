package memory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// Root identifiers, following the usual symbolic-architecture layout.
const (
	InputRoot  domain.Ref = "I2"
	OutputRoot domain.Ref = "I3"
)

var (
	// ErrUnknownRef is returned when an operation names a node that does not exist.
	ErrUnknownRef = errors.New("unknown working memory reference")

	// ErrHasChildren is returned when a branch is destroyed before its children.
	ErrHasChildren = errors.New("node still has children")

	// ErrNotTerminal is returned when a branch is updated as if it were a leaf.
	ErrNotTerminal = errors.New("node is not terminal")
)

// OpKind names a journaled operation.
type OpKind string

const (
	OpCreateBranch OpKind = "create-branch"
	OpCreateLeaf   OpKind = "create-leaf"
	OpUpdate       OpKind = "update"
	OpDestroy      OpKind = "destroy"
)

// Op is one journaled working memory operation.
type Op struct {
	Kind   OpKind
	Ref    domain.Ref
	Parent domain.Ref
	Attr   string
	Value  domain.Value
}

type node struct {
	ref      domain.Ref
	parent   domain.Ref
	attr     string
	terminal bool
	value    domain.Value
	children []domain.Ref
}

// Memory implements ports.WorkingMemory in memory.
// It refuses to destroy a branch whose children are still alive and keeps a
// journal of every operation so tests can assert on ordering and write counts.
// Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	nodes   map[domain.Ref]*node
	journal []Op
	seq     int
}

// New creates an empty working memory with an input and an output root.
func New() *Memory {
	m := &Memory{nodes: make(map[domain.Ref]*node)}
	m.nodes[InputRoot] = &node{ref: InputRoot, attr: "input-link"}
	m.nodes[OutputRoot] = &node{ref: OutputRoot, attr: "output-link"}
	return m
}

// InputRoot returns the input link identifier.
func (m *Memory) InputRoot() domain.Ref { return InputRoot }

// OutputRoot returns the output link identifier.
func (m *Memory) OutputRoot() domain.Ref { return OutputRoot }

func (m *Memory) nextRef(prefix string) domain.Ref {
	m.seq++
	return domain.Ref(fmt.Sprintf("%s%d", prefix, m.seq))
}

func (m *Memory) create(parent domain.Ref, attr string, terminal bool, v domain.Value) (domain.Ref, error) {
	p, ok := m.nodes[parent]
	if !ok {
		return "", fmt.Errorf("create %s under %s: %w", attr, parent, ErrUnknownRef)
	}
	if p.terminal {
		return "", fmt.Errorf("create %s under %s: parent %w", attr, parent, ErrNotTerminal)
	}

	prefix := "S"
	if terminal {
		prefix = "W"
	}
	ref := m.nextRef(prefix)
	m.nodes[ref] = &node{ref: ref, parent: parent, attr: attr, terminal: terminal, value: v}
	p.children = append(p.children, ref)
	return ref, nil
}

// CreateBranch creates an empty attribute node with children.
func (m *Memory) CreateBranch(parent domain.Ref, attr string) (domain.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, err := m.create(parent, attr, false, domain.Value{})
	if err != nil {
		return "", err
	}
	m.journal = append(m.journal, Op{Kind: OpCreateBranch, Ref: ref, Parent: parent, Attr: attr})
	return ref, nil
}

// CreateLeaf creates a terminal attribute.
func (m *Memory) CreateLeaf(parent domain.Ref, attr string, v domain.Value) (domain.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, err := m.create(parent, attr, true, v)
	if err != nil {
		return "", err
	}
	m.journal = append(m.journal, Op{Kind: OpCreateLeaf, Ref: ref, Parent: parent, Attr: attr, Value: v})
	return ref, nil
}

// UpdateLeaf replaces the value of a terminal attribute.
func (m *Memory) UpdateLeaf(ref domain.Ref, v domain.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[ref]
	if !ok {
		return fmt.Errorf("update %s: %w", ref, ErrUnknownRef)
	}
	if !n.terminal {
		return fmt.Errorf("update %s: %w", ref, ErrNotTerminal)
	}
	n.value = v
	m.journal = append(m.journal, Op{Kind: OpUpdate, Ref: ref, Parent: n.parent, Attr: n.attr, Value: v})
	return nil
}

// Destroy removes a node that has no children left.
func (m *Memory) Destroy(ref domain.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.destroy(ref)
}

func (m *Memory) destroy(ref domain.Ref) error {
	if ref == InputRoot || ref == OutputRoot {
		return fmt.Errorf("destroy %s: roots cannot be destroyed", ref)
	}
	n, ok := m.nodes[ref]
	if !ok {
		return fmt.Errorf("destroy %s: %w", ref, ErrUnknownRef)
	}
	if len(n.children) > 0 {
		return fmt.Errorf("destroy %s (%s): %w", ref, n.attr, ErrHasChildren)
	}
	if p, ok := m.nodes[n.parent]; ok {
		p.children = removeRef(p.children, ref)
	}
	delete(m.nodes, ref)
	m.journal = append(m.journal, Op{Kind: OpDestroy, Ref: ref, Parent: n.parent, Attr: n.attr})
	return nil
}

func removeRef(refs []domain.Ref, ref domain.Ref) []domain.Ref {
	for i, r := range refs {
		if r == ref {
			return append(refs[:i], refs[i+1:]...)
		}
	}
	return refs
}

// Journal returns a copy of every operation performed so far.
func (m *Memory) Journal() []Op {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Op(nil), m.journal...)
}

// ResetJournal clears the journal without touching the tree.
func (m *Memory) ResetJournal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = nil
}

// Exists reports whether a node is alive.
func (m *Memory) Exists(ref domain.Ref) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[ref]
	return ok
}

// Len returns the number of live nodes, roots excluded.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes) - 2
}

// Get resolves a dotted attribute path from a root and returns the terminal
// value found there. Multi-valued attributes resolve to the first child.
func (m *Memory) Get(root domain.Ref, path string) (domain.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.walk(root, path)
	if !ok || !n.terminal {
		return domain.Value{}, false
	}
	return n.value, true
}

// Has reports whether a dotted path resolves to a node.
func (m *Memory) Has(root domain.Ref, path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.walk(root, path)
	return ok
}

// Attrs returns the sorted attribute names directly under the node at path.
func (m *Memory) Attrs(root domain.Ref, path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.walk(root, path)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(n.children))
	for _, c := range n.children {
		names = append(names, m.nodes[c].attr)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) walk(root domain.Ref, path string) (*node, bool) {
	n, ok := m.nodes[root]
	if !ok {
		return nil, false
	}
	if path == "" {
		return n, true
	}
	for _, part := range strings.Split(path, ".") {
		var next *node
		for _, c := range n.children {
			if child := m.nodes[c]; child.attr == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil, false
		}
		n = next
	}
	return n, true
}

// Command is a command node placed on the output link.
type Command struct {
	ref    domain.Ref
	verb   string
	params map[string]any
}

var _ ports.CommandNode = (*Command)(nil)

func (c *Command) Ref() domain.Ref { return c.ref }
func (c *Command) Verb() string    { return c.verb }

// Params returns a copy of the command parameters.
func (c *Command) Params() map[string]any {
	out := make(map[string]any, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// PlaceCommand creates a command branch on the output link with one terminal
// per parameter, the way a reasoning engine would.
func (m *Memory) PlaceCommand(verb string, params map[string]any) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, err := m.create(OutputRoot, verb, false, domain.Value{})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := m.create(ref, k, true, domain.ValueOf(params[k])); err != nil {
			return nil, err
		}
	}
	return &Command{ref: ref, verb: verb, params: params}, nil
}

// RemoveCommand removes a command and everything written under it.
func (m *Memory) RemoveCommand(ref domain.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[ref]
	if !ok {
		return fmt.Errorf("remove command %s: %w", ref, ErrUnknownRef)
	}
	var drop func(r domain.Ref)
	drop = func(r domain.Ref) {
		for _, c := range append([]domain.Ref(nil), m.nodes[r].children...) {
			drop(c)
		}
		delete(m.nodes, r)
	}
	drop(ref)
	if p, ok := m.nodes[n.parent]; ok {
		p.children = removeRef(p.children, ref)
	}
	return nil
}
