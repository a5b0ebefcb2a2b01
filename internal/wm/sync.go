package wm

import (
	"github.com/aretw0/wmbridge/pkg/domain"
)

// Sync reconciles the children of parent against spec, creating missing
// attributes and rewriting terminals whose value changed. Attributes absent
// from spec are left alone; pruning is the caller's job.
//
// An existing terminal that spec describes as a sub-tree (or the reverse)
// panics with *domain.InvariantError.
func (t *Tree) Sync(parent *Node, spec domain.SubTree) error {
	for _, key := range spec.Keys() {
		if err := t.syncKey(parent, key, spec[key]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) syncKey(parent *Node, key string, s domain.Spec) error {
	path := joinPath(parent.path, key)
	existing := t.index[path]

	switch v := s.(type) {
	case domain.SubTree:
		if existing == nil {
			n, err := t.AddBranch(parent, key)
			if err != nil {
				return err
			}
			existing = n
		} else if existing.terminal {
			domain.Violation("sync", path, "terminal attribute cannot become a sub-tree")
		}
		return t.Sync(existing, v)

	case domain.Leaf:
		if v.Getter == nil {
			domain.Violation("sync", path, "leaf has no getter")
		}
		return t.syncLeaf(parent, existing, key, domain.ValueOf(v.Getter.Value()))

	case domain.StaticLeaf:
		return t.syncLeaf(parent, existing, key, domain.ValueOf(v.Value))

	default:
		domain.Violation("sync", path, "unsupported spec %T", s)
		return nil
	}
}

func (t *Tree) syncLeaf(parent, existing *Node, key string, v domain.Value) error {
	if existing == nil {
		_, err := t.AddLeaf(parent, key, v)
		return err
	}
	if !existing.terminal {
		domain.Violation("sync", existing.path, "sub-tree attribute cannot become a terminal")
	}
	_, err := t.Set(existing, v)
	return err
}
