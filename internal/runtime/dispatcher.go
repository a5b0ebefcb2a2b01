package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/wmbridge/internal/logging"
	"github.com/aretw0/wmbridge/internal/wm"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/google/uuid"
)

// PendingAction is a command whose robot action is still running.
type PendingAction struct {
	ID      string
	Verb    string
	Command domain.Ref
	Started time.Time

	action ports.Action
	node   *wm.Node
}

// Dispatch is a validated command waiting for its robot call. It is produced
// under the synchronization lock and completed under it again.
type Dispatch struct {
	cmd   ports.CommandNode
	verb  string
	plan  *plan
	epoch uint64
	done  bool
}

// Done reports whether the command already reached a terminal state while
// being validated (rejected, or a local command).
func (d *Dispatch) Done() bool { return d == nil || d.done }

// Dispatcher validates commands, starts robot actions and reports their
// status back into the working memory.
//
// A Dispatcher is not safe for concurrent use; callers hold the synchronization lock.
type Dispatcher struct {
	tree    *wm.Tree
	objects *Tracker
	faces   *Tracker
	units   Units
	enabled map[string]bool

	pending  map[domain.Ref]*PendingAction
	busy     map[string]domain.Ref
	resolved map[domain.Ref]bool
	epoch    uint64

	logger *slog.Logger
	hooks  domain.LifecycleHooks
	now    func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithUnits sets the unit system of incoming parameters.
func WithUnits(u Units) DispatcherOption {
	return func(d *Dispatcher) {
		d.units = u
	}
}

// WithEnabledVerbs restricts the command table. Verbs outside the set are
// treated as unknown.
func WithEnabledVerbs(verbs ...string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(verbs) == 0 {
			return
		}
		d.enabled = make(map[string]bool, len(verbs))
		for _, v := range verbs {
			d.enabled[v] = true
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatcherHooks sets the lifecycle hooks.
func WithDispatcherHooks(hooks domain.LifecycleHooks) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher that resolves targets through the given trackers.
func NewDispatcher(tree *wm.Tree, objects, faces *Tracker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tree:    tree,
		objects: objects,
		faces:   faces,
		units:   UnitsMillimeters,
		pending:  make(map[domain.Ref]*PendingAction),
		busy:     make(map[string]domain.Ref),
		resolved: make(map[domain.Ref]bool),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pending returns the in-flight actions ordered by start time.
func (d *Dispatcher) Pending() []*PendingAction {
	out := make([]*PendingAction, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].Command < out[j].Command
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func (d *Dispatcher) lookup(verb string) (handlerFunc, bool) {
	h, ok := handlers[verb]
	if !ok {
		return nil, false
	}
	if d.enabled != nil && !d.enabled[verb] {
		return nil, false
	}
	return h, true
}

// Validate runs the issued → validating step for one command. It returns nil
// for commands that are skipped (unknown verb, pending or already terminal). A rejected
// or local command is finished before Validate returns; otherwise the verb
// is reserved until Complete is called.
func (d *Dispatcher) Validate(ctx context.Context, cmd ports.CommandNode) (*Dispatch, error) {
	verb := cmd.Verb()
	log := d.logger.With("verb", verb, "command", cmd.Ref())

	handler, ok := d.lookup(verb)
	if !ok {
		log.WarnContext(ctx, "unknown command ignored", "error", domain.ErrUnknownCommand)
		return nil, nil
	}
	if _, dup := d.pending[cmd.Ref()]; dup {
		log.WarnContext(ctx, "command already has a pending action")
		return nil, nil
	}
	if d.resolved[cmd.Ref()] {
		log.WarnContext(ctx, "command already has a terminal status")
		return nil, nil
	}

	disp := &Dispatch{cmd: cmd, verb: verb, epoch: d.epoch}

	if holder, busy := d.busy[verb]; busy {
		disp.done = true
		return disp, d.reject(ctx, cmd, domain.Rejectf(domain.CodeVerbBusy, "%s is already running for command %s", verb, holder))
	}

	p, err := handler(d, cmd.Params())
	if err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		disp.done = true
		return disp, d.reject(ctx, cmd, verr)
	}
	disp.plan = p

	if p.local != nil {
		disp.done = true
		if err := p.local(ctx); err != nil {
			return disp, d.finish(ctx, cmd, verb, domain.CommandFailed, domain.CodeInvalidParameter, err.Error())
		}
		return disp, d.finish(ctx, cmd, verb, domain.CommandComplete, "", "")
	}

	d.busy[verb] = cmd.Ref()
	return disp, nil
}

// Start invokes the robot. It must be called without the synchronization lock.
func (disp *Dispatch) Start(ctx context.Context, robot ports.Robot) (ports.Action, error) {
	return disp.plan.call(ctx, robot)
}

// Complete records the outcome of Start: a start error fails the command, a
// nil action completes it and anything else registers a pending action.
func (d *Dispatcher) Complete(ctx context.Context, disp *Dispatch, action ports.Action, startErr error) error {
	cmd, verb := disp.cmd, disp.verb
	if d.busy[verb] == cmd.Ref() {
		delete(d.busy, verb)
	}

	if startErr != nil {
		d.logger.ErrorContext(ctx, "action failed to start", "verb", verb, "command", cmd.Ref(), "error", startErr)
		return d.finish(ctx, cmd, verb, domain.CommandFailed, domain.CodeStartFailed, startErr.Error())
	}
	if action == nil {
		return d.finish(ctx, cmd, verb, domain.CommandComplete, "", "")
	}
	if disp.epoch != d.epoch {
		// A stop arrived while the robot call was in flight.
		action.Abort()
		return d.finish(ctx, cmd, verb, domain.CommandFailed, domain.CodeAborted, "stopped before the action started")
	}

	node := d.tree.Attach(commandPath(cmd.Ref()), cmd.Ref())
	if _, err := d.tree.Put(node, domain.AttrStatus, domain.String(string(domain.StatusRunning))); err != nil {
		d.tree.Detach(node)
		action.Abort()
		return err
	}

	pa := &PendingAction{
		ID:      uuid.NewString(),
		Verb:    verb,
		Command: cmd.Ref(),
		Started: d.now(),
		action:  action,
		node:    node,
	}
	d.pending[cmd.Ref()] = pa
	d.busy[verb] = cmd.Ref()

	d.logger.InfoContext(ctx, "action started", "verb", verb, "command", cmd.Ref(), "action_id", pa.ID, "args", disp.plan.args)
	if d.hooks.OnCommand != nil {
		d.hooks.OnCommand(ctx, &domain.CommandEvent{
			Timestamp: pa.Started,
			Verb:      verb,
			ActionID:  pa.ID,
			State:     domain.CommandRunning,
		})
	}
	return nil
}

// Poll resolves every pending action that reports completion. A resolved
// action is removed and never polled again.
func (d *Dispatcher) Poll(ctx context.Context) error {
	for _, pa := range d.Pending() {
		if !pa.action.Done() {
			continue
		}
		ok, code, reason := pa.action.Outcome()
		if ok {
			if err := d.resolve(ctx, pa, domain.CommandComplete, "", ""); err != nil {
				return err
			}
			continue
		}
		if code == "" {
			code = domain.CodeUnknown
		}
		if reason == "" {
			reason = "action failed"
		}
		if err := d.resolve(ctx, pa, domain.CommandFailed, code, reason); err != nil {
			return err
		}
	}
	return nil
}

// AbortAll aborts every pending action and fails it with code "aborted".
// Actions still starting when AbortAll runs are aborted once their start returns.
func (d *Dispatcher) AbortAll(ctx context.Context) int {
	d.epoch++
	n := 0
	for _, pa := range d.Pending() {
		pa.action.Abort()
		if err := d.resolve(ctx, pa, domain.CommandFailed, domain.CodeAborted, "stopped"); err != nil {
			d.logger.ErrorContext(ctx, "failed to record aborted action", "verb", pa.Verb, "error", err)
		}
		n++
	}
	if n > 0 {
		d.logger.InfoContext(ctx, "pending actions aborted", "count", n)
	}
	return n
}

func (d *Dispatcher) resolve(ctx context.Context, pa *PendingAction, state domain.CommandState, code, reason string) error {
	delete(d.pending, pa.Command)
	d.resolved[pa.Command] = true
	if d.busy[pa.Verb] == pa.Command {
		delete(d.busy, pa.Verb)
	}
	defer d.tree.Detach(pa.node)

	if err := d.writeStatus(pa.node, state, code, reason); err != nil {
		return err
	}

	duration := d.now().Sub(pa.Started)
	log := d.logger.With("verb", pa.Verb, "command", pa.Command, "action_id", pa.ID, "duration", duration)
	if state == domain.CommandComplete {
		log.InfoContext(ctx, "action complete")
	} else {
		log.WarnContext(ctx, "action failed", "code", code, "reason", reason)
	}
	if d.hooks.OnActionResolved != nil {
		d.hooks.OnActionResolved(ctx, &domain.CommandEvent{
			Timestamp: d.now(),
			Verb:      pa.Verb,
			ActionID:  pa.ID,
			State:     state,
			Code:      code,
			Reason:    reason,
			Duration:  duration,
		})
	}
	return nil
}

func (d *Dispatcher) reject(ctx context.Context, cmd ports.CommandNode, verr *domain.ValidationError) error {
	d.logger.WarnContext(ctx, "command rejected", "verb", cmd.Verb(), "command", cmd.Ref(), "code", verr.Code, "reason", verr.Reason)
	return d.finish(ctx, cmd, cmd.Verb(), domain.CommandRejected, verr.Code, verr.Reason)
}

// finish writes a terminal status for a command that never became pending.
func (d *Dispatcher) finish(ctx context.Context, cmd ports.CommandNode, verb string, state domain.CommandState, code, reason string) error {
	d.resolved[cmd.Ref()] = true
	node := d.tree.Attach(commandPath(cmd.Ref()), cmd.Ref())
	defer d.tree.Detach(node)

	if err := d.writeStatus(node, state, code, reason); err != nil {
		return err
	}
	if state == domain.CommandComplete {
		d.logger.InfoContext(ctx, "command complete", "verb", verb, "command", cmd.Ref())
	}
	if d.hooks.OnCommand != nil {
		d.hooks.OnCommand(ctx, &domain.CommandEvent{
			Timestamp: d.now(),
			Verb:      verb,
			State:     state,
			Code:      code,
			Reason:    reason,
		})
	}
	return nil
}

func (d *Dispatcher) writeStatus(node *wm.Node, state domain.CommandState, code, reason string) error {
	status, ok := state.Status()
	if !ok {
		return fmt.Errorf("command state %s has no status", state)
	}
	if _, err := d.tree.Put(node, domain.AttrStatus, domain.String(string(status))); err != nil {
		return err
	}
	if status != domain.StatusFailed {
		return nil
	}
	if _, err := d.tree.Put(node, domain.AttrFailureCode, domain.String(code)); err != nil {
		return err
	}
	_, err := d.tree.Put(node, domain.AttrFailureReason, domain.String(reason))
	return err
}

func commandPath(ref domain.Ref) string {
	return "@" + string(ref)
}
