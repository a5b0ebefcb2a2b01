// Package wm maintains the bridge's view of the symbolic working memory:
// attribute nodes indexed by dotted path, and the synchronizer that makes
// the live tree match a declarative domain.SubTree with the fewest writes.
package wm
