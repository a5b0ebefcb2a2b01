package domain

import "sort"

// EntityDiff is the outcome of one reconciliation pass.
type EntityDiff struct {
	Added   []Handle `json:"added,omitempty"`
	Updated []Handle `json:"updated,omitempty"`
	Removed []Handle `json:"removed,omitempty"`
}

// DiffHandles classifies handles between the previously tracked set and the
// currently visible set. Results are sorted.
func DiffHandles(tracked, visible map[Handle]bool) EntityDiff {
	var d EntityDiff
	for h := range visible {
		if tracked[h] {
			d.Updated = append(d.Updated, h)
		} else {
			d.Added = append(d.Added, h)
		}
	}
	for h := range tracked {
		if !visible[h] {
			d.Removed = append(d.Removed, h)
		}
	}
	sortHandles(d.Added)
	sortHandles(d.Updated)
	sortHandles(d.Removed)
	return d
}

// IsEmpty reports whether the diff adds or removes nothing.
func (d EntityDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Merge appends the changes of o.
func (d EntityDiff) Merge(o EntityDiff) EntityDiff {
	return EntityDiff{
		Added:   append(append([]Handle(nil), d.Added...), o.Added...),
		Updated: append(append([]Handle(nil), d.Updated...), o.Updated...),
		Removed: append(append([]Handle(nil), d.Removed...), o.Removed...),
	}
}

func sortHandles(hs []Handle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
}
