package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// Mask replaces redacted terminal values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks terminal values whose
// dotted path (e.g. "faces.face2.name") matches one of the patterns.
// Patterns are compiled eagerly; an invalid one panics.
func NewRedactMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Save(ctx context.Context, agent string, snap *domain.Snapshot) error {
	// The caller keeps using snap, so mask a copy.
	cloned := snap.Clone()
	if cloned.Root != nil {
		m.mask("", cloned.Root.Children)
	}
	return m.next.Save(ctx, agent, cloned)
}

func (m *redactMiddleware) mask(prefix string, nodes []*domain.SnapshotNode) {
	for _, n := range nodes {
		path := n.Name
		if prefix != "" {
			path = prefix + "." + n.Name
		}
		if n.Value != nil {
			if m.match(path) {
				masked := domain.String(Mask)
				n.Value = &masked
			}
			continue
		}
		m.mask(path, n.Children)
	}
}

func (m *redactMiddleware) match(path string) bool {
	for _, p := range m.patterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

func (m *redactMiddleware) Load(ctx context.Context, agent string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, agent)
}

func (m *redactMiddleware) Delete(ctx context.Context, agent string) error {
	return m.next.Delete(ctx, agent)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
