package domain

import "sort"

// Getter reads the current value of a terminal attribute.
type Getter interface {
	Value() any
}

// GetterFunc adapts a function to the Getter interface.
type GetterFunc func() any

// Value calls f.
func (f GetterFunc) Value() any { return f() }

// Spec describes what a working memory attribute should contain.
// It is one of Leaf, StaticLeaf or SubTree.
type Spec interface {
	isSpec()
}

// Leaf is a terminal attribute refreshed from a getter every cycle.
type Leaf struct {
	Getter Getter
}

// StaticLeaf is a terminal attribute with a fixed value.
type StaticLeaf struct {
	Value any
}

// SubTree is a nested attribute whose children are reconciled by name.
type SubTree map[string]Spec

func (Leaf) isSpec()       {}
func (StaticLeaf) isSpec() {}
func (SubTree) isSpec()    {}

// LeafFunc is shorthand for a Leaf backed by a function.
func LeafFunc(fn func() any) Leaf {
	return Leaf{Getter: GetterFunc(fn)}
}

// Keys returns the attribute names in sorted order.
func (t SubTree) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Freeze evaluates every getter and returns a tree of static leaves.
// The result no longer depends on the source of the readings.
func (t SubTree) Freeze() SubTree {
	return t.freeze("")
}

func (t SubTree) freeze(prefix string) SubTree {
	out := make(SubTree, len(t))
	for k, s := range t {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := s.(type) {
		case Leaf:
			if v.Getter == nil {
				Violation("freeze", path, "leaf has no getter")
			}
			out[k] = StaticLeaf{Value: ValueOf(v.Getter.Value())}
		case StaticLeaf:
			out[k] = StaticLeaf{Value: ValueOf(v.Value)}
		case SubTree:
			out[k] = v.freeze(path)
		}
	}
	return out
}

// Merge returns a copy of base with overlay applied on top. Keys present in
// overlay win; sub-trees present on both sides are merged recursively.
func Merge(base, overlay SubTree) SubTree {
	out := make(SubTree, len(base)+len(overlay))
	for k, s := range base {
		out[k] = s
	}
	for k, s := range overlay {
		if sub, ok := s.(SubTree); ok {
			if prev, ok := out[k].(SubTree); ok {
				out[k] = Merge(prev, sub)
				continue
			}
		}
		out[k] = s
	}
	return out
}
