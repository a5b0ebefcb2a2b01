package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/wmbridge/internal/logging"
	"github.com/aretw0/wmbridge/internal/wm"
	"github.com/aretw0/wmbridge/pkg/domain"
)

// ReappearPolicy decides what an entity that comes back after disappearing
// starts with.
type ReappearPolicy string

const (
	// ReappearFresh treats a returning perception identity as a new entity.
	ReappearFresh ReappearPolicy = "fresh"
	// ReappearRestore merges the properties it had when it disappeared.
	ReappearRestore ReappearPolicy = "restore"
)

// ParseReappearPolicy validates a policy name. Empty means fresh.
func ParseReappearPolicy(s string) (ReappearPolicy, error) {
	switch ReappearPolicy(s) {
	case "", ReappearFresh:
		return ReappearFresh, nil
	case ReappearRestore:
		return ReappearRestore, nil
	}
	return "", fmt.Errorf("unknown reappear policy %q", s)
}

// Tracker-owned attributes written under every entity.
const (
	AttrHandle    = "handle"
	AttrSightings = "sightings"
)

// Entity is one tracked object or face.
type Entity struct {
	Handle       domain.Handle
	Kind         domain.EntityKind
	PerceptionID int
	Sightings    int

	node  *wm.Node
	props domain.SubTree
}

// Path returns the dotted path of the entity's subtree.
func (e *Entity) Path() string { return e.node.Path() }

type link struct {
	src, dest domain.Handle
}

type retainedEntity struct {
	props     domain.SubTree
	sightings int
}

// Tracker reconciles the visible entities of one kind against the tracked set
// and keeps one subtree per handle under the kind's root attribute.
//
// A Tracker is not safe for concurrent use; callers hold the synchronization lock.
type Tracker struct {
	kind   domain.EntityKind
	tree   *wm.Tree
	parent *wm.Node
	root   *wm.Node

	entities map[domain.Handle]*Entity
	links    map[domain.Handle]domain.Handle
	queued   []link

	policy        ReappearPolicy
	retainLimit   int
	retained      map[domain.Handle]retainedEntity
	retainedOrder []domain.Handle

	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithReappearPolicy sets the reappearance policy and, for ReappearRestore,
// how many departed entities are remembered.
func WithReappearPolicy(p ReappearPolicy, retainLimit int) TrackerOption {
	return func(t *Tracker) {
		t.policy = p
		t.retainLimit = retainLimit
	}
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTrackerHooks sets the lifecycle hooks fired on add and remove.
func WithTrackerHooks(hooks domain.LifecycleHooks) TrackerOption {
	return func(t *Tracker) {
		t.hooks = hooks
	}
}

// NewTracker creates a tracker whose entities live under parent.<kind root>.
// The root attribute is created on the first pass.
func NewTracker(kind domain.EntityKind, tree *wm.Tree, parent *wm.Node, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		kind:     kind,
		tree:     tree,
		parent:   parent,
		entities: make(map[domain.Handle]*Entity),
		links:    make(map[domain.Handle]domain.Handle),
		retained: make(map[domain.Handle]retainedEntity),
		policy:   ReappearFresh,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.retainLimit <= 0 {
		t.retainLimit = 64
	}
	t.logger = t.logger.With("kind", string(kind))
	return t
}

// Kind returns the entity kind tracked.
func (t *Tracker) Kind() domain.EntityKind { return t.kind }

// Len returns the number of tracked entities.
func (t *Tracker) Len() int { return len(t.entities) }

// Handles returns the tracked handles in sorted order.
func (t *Tracker) Handles() []domain.Handle {
	out := make([]domain.Handle, 0, len(t.entities))
	for h := range t.entities {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Get returns the tracked entity with the given handle.
func (t *Tracker) Get(h domain.Handle) (*Entity, bool) {
	e, ok := t.entities[h]
	return e, ok
}

// Resolve maps a perception identity to its handle by following the
// redirection table from the default handle.
func (t *Tracker) Resolve(id int) domain.Handle {
	return t.follow(t.kind.DefaultHandle(id))
}

func (t *Tracker) follow(h domain.Handle) domain.Handle {
	seen := map[domain.Handle]bool{h: true}
	for {
		next, ok := t.links[h]
		if !ok || seen[next] {
			return h
		}
		seen[next] = true
		h = next
	}
}

// HandleFor returns the handle tracking the given perception identity.
func (t *Tracker) HandleFor(id int) (domain.Handle, bool) {
	h := t.Resolve(id)
	if _, ok := t.entities[h]; ok {
		return h, true
	}
	return "", false
}

// Link queues a redirection of src onto dest. It takes effect at the start
// of the next pass.
func (t *Tracker) Link(src, dest domain.Handle) error {
	if src == "" || dest == "" {
		return fmt.Errorf("link %q -> %q: handles must not be empty", src, dest)
	}
	if src == dest {
		return fmt.Errorf("link %q -> %q: cannot link a handle to itself", src, dest)
	}
	t.queued = append(t.queued, link{src: src, dest: dest})
	return nil
}

// Links returns a copy of the redirection table.
func (t *Tracker) Links() map[domain.Handle]domain.Handle {
	out := make(map[domain.Handle]domain.Handle, len(t.links))
	for k, v := range t.links {
		out[k] = v
	}
	return out
}

func (t *Tracker) ensureRoot() error {
	if t.root != nil {
		return nil
	}
	root, err := t.tree.AddBranch(t.parent, t.kind.Root())
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

// ApplyLinks applies every queued link. The source subtree is torn down and,
// if the destination is not tracked yet, recreated under the destination
// handle with the source's last properties.
func (t *Tracker) ApplyLinks(ctx context.Context) error {
	queued := t.queued
	t.queued = nil
	for _, l := range queued {
		if t.follow(l.dest) == l.src {
			t.logger.WarnContext(ctx, "link rejected: would create a cycle", "src", l.src, "dest", l.dest)
			continue
		}
		t.links[l.src] = l.dest
		t.logger.InfoContext(ctx, "handle linked", "src", l.src, "dest", l.dest)

		src, ok := t.entities[l.src]
		if !ok {
			continue
		}
		dest := t.follow(l.dest)
		if existing, ok := t.entities[dest]; ok {
			// The destination follows the linked identity from now on.
			existing.PerceptionID = src.PerceptionID
		} else {
			if _, err := t.add(ctx, dest, src.PerceptionID, src.props, src.Sightings, true); err != nil {
				return err
			}
		}
		if err := t.remove(ctx, src, true); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile makes the tracked set match the visible observations: new
// handles get a subtree, visible handles are refreshed in place and handles
// no longer visible are torn down.
func (t *Tracker) Reconcile(ctx context.Context, observations []domain.Observation) (domain.EntityDiff, error) {
	if err := t.ensureRoot(); err != nil {
		return domain.EntityDiff{}, err
	}

	visible := t.visibleSet(ctx, observations)

	tracked := make(map[domain.Handle]bool, len(t.entities))
	for h := range t.entities {
		tracked[h] = true
	}
	present := make(map[domain.Handle]bool, len(visible))
	for h := range visible {
		present[h] = true
	}
	diff := domain.DiffHandles(tracked, present)

	for _, h := range diff.Updated {
		e := t.entities[h]
		obs := visible[h]
		e.PerceptionID = obs.PerceptionID()
		if err := t.refresh(e, obs.Properties()); err != nil {
			return diff, err
		}
	}

	for _, h := range diff.Added {
		obs := visible[h]
		props := obs.Properties()
		sightings := 0
		if r, ok := t.retained[h]; ok && t.policy == ReappearRestore {
			props = domain.Merge(r.props, props)
			sightings = r.sightings
			t.forgetRetained(h)
		}
		if _, err := t.add(ctx, h, obs.PerceptionID(), props, sightings, false); err != nil {
			return diff, err
		}
	}

	for _, h := range diff.Removed {
		if err := t.remove(ctx, t.entities[h], false); err != nil {
			return diff, err
		}
	}

	return diff, nil
}

// visibleSet keys observations by handle. When two observations resolve to
// the same handle, the one matching the tracked perception identity wins,
// otherwise the lowest identity.
func (t *Tracker) visibleSet(ctx context.Context, observations []domain.Observation) map[domain.Handle]domain.Observation {
	visible := make(map[domain.Handle]domain.Observation, len(observations))
	for _, obs := range observations {
		h := t.Resolve(obs.PerceptionID())
		prev, dup := visible[h]
		if !dup {
			visible[h] = obs
			continue
		}
		keep, drop := prev, obs
		if t.prefer(h, obs, prev) {
			keep, drop = obs, prev
		}
		visible[h] = keep
		t.logger.WarnContext(ctx, "observation dropped, handle already visible",
			"handle", h, "kept", keep.PerceptionID(), "dropped", drop.PerceptionID())
	}
	return visible
}

func (t *Tracker) prefer(h domain.Handle, candidate, current domain.Observation) bool {
	if e, ok := t.entities[h]; ok {
		if candidate.PerceptionID() == e.PerceptionID {
			return true
		}
		if current.PerceptionID() == e.PerceptionID {
			return false
		}
	}
	return candidate.PerceptionID() < current.PerceptionID()
}

func (t *Tracker) refresh(e *Entity, props domain.SubTree) error {
	e.props = props.Freeze()
	return t.tree.Sync(e.node, e.props)
}

func (t *Tracker) ownedSpec(e *Entity) domain.SubTree {
	return domain.SubTree{
		AttrHandle:    domain.StaticLeaf{Value: string(e.Handle)},
		AttrSightings: domain.StaticLeaf{Value: e.Sightings},
	}
}

func (t *Tracker) add(ctx context.Context, h domain.Handle, id int, props domain.SubTree, sightings int, linked bool) (*Entity, error) {
	if err := t.ensureRoot(); err != nil {
		return nil, err
	}
	if _, exists := t.entities[h]; exists {
		domain.Violation("track", string(h), "handle already has a subtree")
	}
	node, err := t.tree.AddBranch(t.root, string(h))
	if err != nil {
		return nil, err
	}
	if !linked {
		sightings++
	}
	if sightings == 0 {
		sightings = 1
	}
	e := &Entity{Handle: h, Kind: t.kind, PerceptionID: id, Sightings: sightings, node: node}
	t.entities[h] = e

	if err := t.tree.Sync(node, t.ownedSpec(e)); err != nil {
		return nil, err
	}
	if err := t.refresh(e, props); err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "entity added", "handle", h, "perception_id", id, "linked", linked)
	if t.hooks.OnEntityAdded != nil {
		t.hooks.OnEntityAdded(ctx, &domain.EntityEvent{
			Timestamp:    time.Now(),
			Kind:         t.kind,
			Handle:       h,
			PerceptionID: id,
			Linked:       linked,
		})
	}
	return e, nil
}

func (t *Tracker) remove(ctx context.Context, e *Entity, linked bool) error {
	if err := t.tree.Destroy(e.node); err != nil {
		return err
	}
	delete(t.entities, e.Handle)
	if t.policy == ReappearRestore && !linked {
		t.retain(e)
	}

	t.logger.InfoContext(ctx, "entity removed", "handle", e.Handle, "perception_id", e.PerceptionID, "linked", linked)
	if t.hooks.OnEntityRemoved != nil {
		t.hooks.OnEntityRemoved(ctx, &domain.EntityEvent{
			Timestamp:    time.Now(),
			Kind:         t.kind,
			Handle:       e.Handle,
			PerceptionID: e.PerceptionID,
			Linked:       linked,
		})
	}
	return nil
}

func (t *Tracker) retain(e *Entity) {
	if _, ok := t.retained[e.Handle]; !ok {
		t.retainedOrder = append(t.retainedOrder, e.Handle)
	}
	t.retained[e.Handle] = retainedEntity{props: e.props, sightings: e.Sightings}
	for len(t.retainedOrder) > t.retainLimit {
		oldest := t.retainedOrder[0]
		t.retainedOrder = t.retainedOrder[1:]
		delete(t.retained, oldest)
	}
}

func (t *Tracker) forgetRetained(h domain.Handle) {
	delete(t.retained, h)
	for i, r := range t.retainedOrder {
		if r == h {
			t.retainedOrder = append(t.retainedOrder[:i], t.retainedOrder[i+1:]...)
			return
		}
	}
}

// Clear tears down every tracked entity.
func (t *Tracker) Clear(ctx context.Context) error {
	for _, h := range t.Handles() {
		if err := t.remove(ctx, t.entities[h], false); err != nil {
			return err
		}
	}
	return nil
}
