package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/aretw0/wmbridge/internal/logging"
	"github.com/aretw0/wmbridge/internal/wm"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// DefaultEventQueueSize is the capacity of the perception event queue.
const DefaultEventQueueSize = 256

// Config holds the engine settings. Zero values select the defaults.
type Config struct {
	Agent       string
	Units       Units
	Reappear    ReappearPolicy
	RetainLimit int
	EventQueue  int
	Verbs       []string

	Locker  ports.DistributedLocker
	LockTTL time.Duration
	Store   ports.SnapshotStore

	Logger *slog.Logger
	Hooks  domain.LifecycleHooks
	Clock  func() time.Time
}

// Stats is a lock-free view of the engine counters.
type Stats struct {
	Cycle   uint64            `json:"cycle"`
	Objects int               `json:"objects"`
	Faces   int               `json:"faces"`
	Pending int               `json:"pending"`
	Dropped uint64            `json:"dropped_events"`
	Writes  domain.WriteStats `json:"writes"`
}

// Engine runs the input and output phases of the bridge.
type Engine struct {
	agent      string
	robot      ports.Robot
	perception ports.Perception
	store      ports.SnapshotStore

	// Guarded by guard.
	tree       *wm.Tree
	root       *wm.Node
	objects    *Tracker
	faces      *Tracker
	dispatcher *Dispatcher
	readings   *readings
	static     domain.SubTree
	cycle      uint64

	guard  *Guard
	events chan domain.PerceptionEvent

	last    atomic.Pointer[domain.Snapshot]
	stats   atomic.Pointer[Stats]
	dropped atomic.Uint64

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	now    func() time.Time
}

// NewEngine wires an engine over the given working memory, robot and sensor source.
func NewEngine(mem ports.WorkingMemory, robot ports.Robot, perception ports.Perception, cfg Config) (*Engine, error) {
	if mem == nil || robot == nil || perception == nil {
		return nil, fmt.Errorf("working memory, robot and perception are required")
	}
	if cfg.Agent == "" {
		cfg.Agent = "default"
	}
	if cfg.Units == "" {
		cfg.Units = UnitsMillimeters
	}
	if cfg.Reappear == "" {
		cfg.Reappear = ReappearFresh
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = DefaultEventQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	for _, v := range cfg.Verbs {
		if !KnownVerb(v) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, v)
		}
	}

	logger := cfg.Logger.With("agent", cfg.Agent)
	tree := wm.NewTree(mem)
	root := tree.Attach("", mem.InputRoot())

	trackerOpts := []TrackerOption{
		WithReappearPolicy(cfg.Reappear, cfg.RetainLimit),
		WithTrackerLogger(logger),
		WithTrackerHooks(cfg.Hooks),
	}
	objects := NewTracker(domain.KindObject, tree, root, trackerOpts...)
	faces := NewTracker(domain.KindFace, tree, root, trackerOpts...)

	r := &readings{holding: domain.NoneValue}
	e := &Engine{
		agent:      cfg.Agent,
		robot:      robot,
		perception: perception,
		store:      cfg.Store,
		tree:       tree,
		root:       root,
		objects:    objects,
		faces:      faces,
		readings:   r,
		static:     staticInputs(r),
		guard:      NewGuard(cfg.Agent, cfg.Locker, cfg.LockTTL, logger),
		events:     make(chan domain.PerceptionEvent, cfg.EventQueue),
		logger:     logger,
		hooks:      cfg.Hooks,
		now:        cfg.Clock,
	}
	e.dispatcher = NewDispatcher(tree, objects, faces,
		WithUnits(cfg.Units),
		WithEnabledVerbs(cfg.Verbs...),
		WithDispatcherLogger(logger),
		WithDispatcherHooks(cfg.Hooks),
		WithClock(cfg.Clock),
	)
	e.stats.Store(&Stats{})
	return e, nil
}

// Agent returns the agent name the engine is keyed by.
func (e *Engine) Agent() string { return e.agent }

// Notify queues a perception event for the next input phase. It never
// blocks; a full queue drops the event and returns domain.ErrQueueFull.
// Safe to call from any goroutine.
func (e *Engine) Notify(ev domain.PerceptionEvent) error {
	select {
	case e.events <- ev:
		return nil
	default:
		e.dropped.Add(1)
		e.logger.Warn("perception event dropped", "type", ev.Type, "kind", ev.Kind, "id", ev.ID)
		return domain.ErrQueueFull
	}
}

// Link queues a redirection of src onto dest. It takes effect at the next
// input phase. Safe to call from any goroutine.
func (e *Engine) Link(kind domain.EntityKind, src, dest domain.Handle) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if src == "" || dest == "" || src == dest {
		return fmt.Errorf("invalid link %q -> %q", src, dest)
	}
	return e.Notify(domain.PerceptionEvent{Type: domain.EventLink, Kind: kind, Source: src, Destination: dest})
}

// InputPhase pulls a perception snapshot and, under the synchronization lock,
// drains queued events, applies links, reconciles objects and faces,
// refreshes the static inputs and polls pending actions.
func (e *Engine) InputPhase(ctx context.Context) error {
	start := e.now()

	// The sensor query may block; keep it outside the lock.
	snap, err := e.perception.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("perception snapshot: %w", err)
	}

	var out *domain.Snapshot
	err = e.guard.WithLock(ctx, func(ctx context.Context) error {
		before := e.tree.Stats()
		e.cycle++

		objects, faces := e.drain(ctx, snap)
		if err := e.objects.ApplyLinks(ctx); err != nil {
			return err
		}
		if err := e.faces.ApplyLinks(ctx); err != nil {
			return err
		}

		if _, err := e.objects.Reconcile(ctx, objects); err != nil {
			return fmt.Errorf("objects: %w", err)
		}
		if _, err := e.faces.Reconcile(ctx, faces); err != nil {
			return fmt.Errorf("faces: %w", err)
		}

		// Counts and the held object are derived from the reconciled sets.
		e.readings.state = snap.Robot
		e.readings.objectCount = e.objects.Len()
		e.readings.faceCount = e.faces.Len()
		e.readings.holding = domain.NoneValue
		if h, ok := e.objects.HandleFor(snap.Robot.CarryingObjectID); ok && snap.Robot.CarryingObjectID > 0 {
			e.readings.holding = string(h)
		}
		if err := e.tree.Sync(e.root, e.static); err != nil {
			return fmt.Errorf("static inputs: %w", err)
		}
		if err := e.dispatcher.Poll(ctx); err != nil {
			return fmt.Errorf("poll: %w", err)
		}

		out = e.snapshotLocked()
		e.publishStats()
		e.firePhase(ctx, domain.PhaseInput, start, e.tree.Stats().Sub(before))
		return nil
	})
	if err != nil {
		return err
	}

	e.last.Store(out)
	if e.store != nil {
		if err := e.store.Save(ctx, e.agent, out); err != nil {
			e.logger.ErrorContext(ctx, "failed to persist snapshot", "cycle", out.Cycle, "error", err)
		}
	}
	return nil
}

// OutputPhase dispatches commands in order. Each command is validated under
// the lock, its robot call is made with the lock released, and its status is
// recorded under the lock again.
func (e *Engine) OutputPhase(ctx context.Context, commands []ports.CommandNode) error {
	start := e.now()
	var before domain.WriteStats
	for i, cmd := range commands {
		var disp *Dispatch
		err := e.guard.WithLock(ctx, func(ctx context.Context) error {
			if i == 0 {
				before = e.tree.Stats()
			}
			var err error
			disp, err = e.dispatcher.Validate(ctx, cmd)
			return err
		})
		if err != nil {
			return err
		}
		if disp.Done() {
			continue
		}

		action, startErr := disp.Start(ctx, e.robot)

		// The action is already running; record it even if ctx is canceled.
		err = e.guard.WithLock(context.WithoutCancel(ctx), func(ctx context.Context) error {
			return e.dispatcher.Complete(ctx, disp, action, startErr)
		})
		if err != nil {
			if action != nil {
				action.Abort()
			}
			return err
		}
	}

	return e.guard.WithLock(context.WithoutCancel(ctx), func(ctx context.Context) error {
		e.publishStats()
		if len(commands) > 0 {
			e.firePhase(ctx, domain.PhaseOutput, start, e.tree.Stats().Sub(before))
		}
		return nil
	})
}

// Stop aborts every pending action. It takes the same lock as polling, and
// holds it only while marking actions aborted.
func (e *Engine) Stop(ctx context.Context) error {
	return e.guard.WithLock(ctx, func(ctx context.Context) error {
		e.dispatcher.AbortAll(ctx)
		e.publishStats()
		return nil
	})
}

// Close aborts pending actions and tears down every tracked entity.
func (e *Engine) Close(ctx context.Context) error {
	return e.guard.WithLock(ctx, func(ctx context.Context) error {
		e.dispatcher.AbortAll(ctx)
		if err := e.objects.Clear(ctx); err != nil {
			return err
		}
		if err := e.faces.Clear(ctx); err != nil {
			return err
		}
		e.publishStats()
		return nil
	})
}

// Snapshot returns the input tree as of the last input phase, or nil before
// the first one.
func (e *Engine) Snapshot() *domain.Snapshot {
	return e.last.Load()
}

// Entities returns the handles of the given kind as of the last input phase.
func (e *Engine) Entities(kind domain.EntityKind) []domain.Handle {
	snap := e.last.Load()
	if snap == nil {
		return nil
	}
	node := snap.Lookup(kind.Root())
	if node == nil {
		return nil
	}
	out := make([]domain.Handle, 0, len(node.Children))
	for _, c := range node.Children {
		out = append(out, domain.Handle(c.Name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats returns the counters as of the last completed phase.
func (e *Engine) Stats() Stats {
	s := *e.stats.Load()
	s.Dropped = e.dropped.Load()
	return s
}

func (e *Engine) publishStats() {
	e.stats.Store(&Stats{
		Cycle:   e.cycle,
		Objects: e.objects.Len(),
		Faces:   e.faces.Len(),
		Pending: len(e.dispatcher.pending),
		Writes:  e.tree.Stats(),
	})
}

func (e *Engine) snapshotLocked() *domain.Snapshot {
	root := e.root.Snapshot()
	root.Name = "input-link"
	return &domain.Snapshot{
		Agent: e.agent,
		Cycle: e.cycle,
		Taken: e.now(),
		Root:  root,
	}
}

func (e *Engine) firePhase(ctx context.Context, phase string, start time.Time, writes domain.WriteStats) {
	duration := e.now().Sub(start)
	e.logger.DebugContext(ctx, "phase complete", "phase", phase, "cycle", e.cycle, "duration", duration,
		"creates", writes.Creates, "updates", writes.Updates, "destroys", writes.Destroys)
	if e.hooks.OnPhase != nil {
		e.hooks.OnPhase(ctx, &domain.PhaseEvent{
			Timestamp: e.now(),
			Phase:     phase,
			Cycle:     e.cycle,
			Duration:  duration,
			Writes:    writes,
		})
	}
}

// drain merges queued perception events into the snapshot. Appearance adds
// an observation the snapshot does not have yet, disappearance removes one
// and links are handed to the trackers. Events are applied in arrival order.
func (e *Engine) drain(ctx context.Context, snap domain.PerceptionSnapshot) (objects, faces []domain.Observation) {
	visible := map[domain.EntityKind]map[int]domain.Observation{
		domain.KindObject: make(map[int]domain.Observation, len(snap.Objects)),
		domain.KindFace:   make(map[int]domain.Observation, len(snap.Faces)),
	}
	for _, o := range snap.Objects {
		visible[domain.KindObject][o.ID] = o
	}
	for _, f := range snap.Faces {
		visible[domain.KindFace][f.ID] = f
	}

	n := len(e.events)
	for i := 0; i < n; i++ {
		ev := <-e.events
		set, ok := visible[ev.Kind]
		if !ok {
			e.logger.WarnContext(ctx, "perception event with unknown kind ignored", "kind", ev.Kind)
			continue
		}
		switch ev.Type {
		case domain.EventAppeared:
			if ev.Observation == nil {
				continue
			}
			if _, seen := set[ev.Observation.PerceptionID()]; !seen {
				set[ev.Observation.PerceptionID()] = ev.Observation
			}
		case domain.EventDisappeared:
			delete(set, ev.ID)
		case domain.EventLink:
			if err := e.tracker(ev.Kind).Link(ev.Source, ev.Destination); err != nil {
				e.logger.WarnContext(ctx, "link ignored", "error", err)
			}
		}
	}

	return sortedObservations(visible[domain.KindObject]), sortedObservations(visible[domain.KindFace])
}

func (e *Engine) tracker(kind domain.EntityKind) *Tracker {
	if kind == domain.KindFace {
		return e.faces
	}
	return e.objects
}

func sortedObservations(set map[int]domain.Observation) []domain.Observation {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]domain.Observation, 0, len(ids))
	for _, id := range ids {
		out = append(out, set[id])
	}
	return out
}
