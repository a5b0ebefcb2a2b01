package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// DefaultActionPolls is how many completion checks an action takes to finish.
const DefaultActionPolls = 2

// Failure scripts an operation to fail.
type Failure struct {
	Code   string `yaml:"code" json:"code"`
	Reason string `yaml:"reason" json:"reason"`
	// Start makes the robot call itself return an error instead of an action.
	Start bool `yaml:"start" json:"start"`
}

// Scenario is the initial state of a simulated world.
type Scenario struct {
	Robot       domain.RobotState          `yaml:"robot" json:"robot"`
	Objects     []domain.ObjectObservation `yaml:"objects" json:"objects"`
	Faces       []domain.FaceObservation   `yaml:"faces" json:"faces"`
	ActionPolls int                        `yaml:"action_polls" json:"action_polls"`
	// Failures is keyed by operation name, e.g. "pick-up-object".
	Failures map[string]Failure `yaml:"failures" json:"failures"`
}

// Operation names used in Scenario.Failures and World.Calls.
const (
	OpDrive       = "drive-straight"
	OpTurn        = "turn-in-place"
	OpLift        = "set-lift-height"
	OpHead        = "set-head-angle"
	OpGoTo        = "go-to-object"
	OpPickUp      = "pick-up-object"
	OpPlaceOn     = "place-on-object"
	OpPlaceDown   = "place-object-down"
	OpDock        = "dock-with-cube"
	OpTurnToFace  = "turn-towards-face"
	OpBackpack    = "set-backpack-lights"
	OpCubeLights  = "set-cube-lights"
	liftMinHeight = 32.0
	liftMaxHeight = 92.0
)

// World is a simulated robot and its perception. It implements both
// ports.Robot and ports.Perception. Safe for concurrent use.
type World struct {
	mu sync.Mutex

	robot    domain.RobotState
	objects  map[int]domain.ObjectObservation
	faces    map[int]domain.FaceObservation
	polls    int
	failures map[string]Failure

	backpack   domain.Color
	cubeLights map[int]domain.Color
	calls      []string
	active     []*action

	subscribers []chan domain.PerceptionEvent
}

var (
	_ ports.Robot      = (*World)(nil)
	_ ports.Perception = (*World)(nil)
)

// NewWorld creates a world from a scenario.
func NewWorld(s Scenario) *World {
	w := &World{
		robot:      s.Robot,
		objects:    make(map[int]domain.ObjectObservation),
		faces:      make(map[int]domain.FaceObservation),
		polls:      s.ActionPolls,
		failures:   make(map[string]Failure),
		backpack:   domain.ColorOff,
		cubeLights: make(map[int]domain.Color),
	}
	if w.polls <= 0 {
		w.polls = DefaultActionPolls
	}
	for _, o := range s.Objects {
		w.objects[o.ID] = o
	}
	for _, f := range s.Faces {
		w.faces[f.ID] = f
	}
	for op, f := range s.Failures {
		w.failures[op] = f
	}
	return w
}

// Snapshot returns the current robot state and visible entities, ordered by id.
func (w *World) Snapshot(ctx context.Context) (domain.PerceptionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.PerceptionSnapshot{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := domain.PerceptionSnapshot{Robot: w.robot}
	for _, id := range sortedKeys(w.objects) {
		snap.Objects = append(snap.Objects, w.objects[id])
	}
	for _, id := range sortedKeys(w.faces) {
		snap.Faces = append(snap.Faces, w.faces[id])
	}
	return snap, nil
}

func sortedKeys[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Show makes an object visible, replacing any previous observation with the same id.
func (w *World) Show(o domain.ObjectObservation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, seen := w.objects[o.ID]
	w.objects[o.ID] = o
	if !seen {
		w.publish(domain.PerceptionEvent{Type: domain.EventAppeared, Kind: domain.KindObject, ID: o.ID, Observation: o})
	}
}

// Hide removes an object from view.
func (w *World) Hide(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.objects[id]; !ok {
		return
	}
	delete(w.objects, id)
	w.publish(domain.PerceptionEvent{Type: domain.EventDisappeared, Kind: domain.KindObject, ID: id})
}

// ShowFace makes a face visible.
func (w *World) ShowFace(f domain.FaceObservation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, seen := w.faces[f.ID]
	w.faces[f.ID] = f
	if !seen {
		w.publish(domain.PerceptionEvent{Type: domain.EventAppeared, Kind: domain.KindFace, ID: f.ID, Observation: f})
	}
}

// HideFace removes a face from view.
func (w *World) HideFace(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.faces[id]; !ok {
		return
	}
	delete(w.faces, id)
	w.publish(domain.PerceptionEvent{Type: domain.EventDisappeared, Kind: domain.KindFace, ID: id})
}

// UpdateRobot applies fn to the robot state.
func (w *World) UpdateRobot(fn func(*domain.RobotState)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.robot)
}

// Fail scripts op to fail from now on. A zero Failure clears it.
func (w *World) Fail(op string, f Failure) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f == (Failure{}) {
		delete(w.failures, op)
		return
	}
	w.failures[op] = f
}

// Calls returns the robot operations invoked so far, in order.
func (w *World) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// Backpack returns the current backpack light color.
func (w *World) Backpack() domain.Color {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backpack
}

// CubeLights returns the light color of a cube.
func (w *World) CubeLights(id int) domain.Color {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.cubeLights[id]; ok {
		return c
	}
	return domain.ColorOff
}

// Active returns the number of unfinished actions.
func (w *World) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, a := range w.active {
		if !a.finished {
			n++
		}
	}
	return n
}

// start records a call and returns a running action that applies effect on success.
func (w *World) start(op, detail string, effect func(*World)) (ports.Action, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls = append(w.calls, op+detail)
	f, failing := w.failures[op]
	if failing && f.Start {
		return nil, fmt.Errorf("%s: %s", op, f.Reason)
	}
	a := &action{world: w, op: op, remaining: w.polls, effect: effect}
	if failing {
		a.failure = &f
	}
	w.active = append(w.active, a)
	return a, nil
}

func (w *World) requireObject(op string, id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.objects[id]; !ok {
		return fmt.Errorf("%s: object %d is not visible", op, id)
	}
	return nil
}

func (w *World) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) (ports.Action, error) {
	return w.start(OpDrive, fmt.Sprintf("(%g,%g)", distanceMM, speedMMPS), func(w *World) {
		w.robot.Pose.X += distanceMM
	})
}

func (w *World) TurnInPlace(ctx context.Context, angleDeg, speedDegPS float64) (ports.Action, error) {
	return w.start(OpTurn, fmt.Sprintf("(%g,%g)", angleDeg, speedDegPS), func(w *World) {
		w.robot.Pose.Rot += angleDeg
	})
}

func (w *World) SetLiftHeight(ctx context.Context, ratio float64) (ports.Action, error) {
	return w.start(OpLift, fmt.Sprintf("(%g)", ratio), func(w *World) {
		w.robot.LiftRatio = ratio
		w.robot.LiftHeight = liftMinHeight + ratio*(liftMaxHeight-liftMinHeight)
	})
}

func (w *World) SetHeadAngle(ctx context.Context, angleDeg float64) (ports.Action, error) {
	return w.start(OpHead, fmt.Sprintf("(%g)", angleDeg), func(w *World) {
		w.robot.HeadAngle = angleDeg
	})
}

func (w *World) GoToObject(ctx context.Context, objectID int, distanceMM float64) (ports.Action, error) {
	if err := w.requireObject(OpGoTo, objectID); err != nil {
		return nil, err
	}
	return w.start(OpGoTo, fmt.Sprintf("(%d,%g)", objectID, distanceMM), func(w *World) {
		if o, ok := w.objects[objectID]; ok {
			w.robot.Pose.X = o.Pose.X - distanceMM
			w.robot.Pose.Y = o.Pose.Y
		}
	})
}

func (w *World) PickUpObject(ctx context.Context, objectID int) (ports.Action, error) {
	if err := w.requireObject(OpPickUp, objectID); err != nil {
		return nil, err
	}
	return w.start(OpPickUp, fmt.Sprintf("(%d)", objectID), func(w *World) {
		w.robot.CarryingBlock = true
		w.robot.CarryingObjectID = objectID
	})
}

func (w *World) PlaceOnObject(ctx context.Context, objectID int) (ports.Action, error) {
	if err := w.requireObject(OpPlaceOn, objectID); err != nil {
		return nil, err
	}
	return w.start(OpPlaceOn, fmt.Sprintf("(%d)", objectID), func(w *World) {
		w.robot.CarryingBlock = false
		w.robot.CarryingObjectID = -1
	})
}

func (w *World) PlaceObjectDown(ctx context.Context) (ports.Action, error) {
	return w.start(OpPlaceDown, "()", func(w *World) {
		w.robot.CarryingBlock = false
		w.robot.CarryingObjectID = -1
	})
}

func (w *World) DockWithCube(ctx context.Context, objectID int) (ports.Action, error) {
	if err := w.requireObject(OpDock, objectID); err != nil {
		return nil, err
	}
	return w.start(OpDock, fmt.Sprintf("(%d)", objectID), nil)
}

func (w *World) TurnTowardsFace(ctx context.Context, faceID int) (ports.Action, error) {
	w.mu.Lock()
	_, ok := w.faces[faceID]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: face %d is not visible", OpTurnToFace, faceID)
	}
	return w.start(OpTurnToFace, fmt.Sprintf("(%d)", faceID), nil)
}

func (w *World) SetBackpackLights(ctx context.Context, color domain.Color) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, fmt.Sprintf("%s(%s)", OpBackpack, color))
	if f, ok := w.failures[OpBackpack]; ok {
		return fmt.Errorf("%s: %s", OpBackpack, f.Reason)
	}
	w.backpack = color
	return nil
}

func (w *World) SetCubeLights(ctx context.Context, objectID int, color domain.Color) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, fmt.Sprintf("%s(%d,%s)", OpCubeLights, objectID, color))
	if f, ok := w.failures[OpCubeLights]; ok {
		return fmt.Errorf("%s: %s", OpCubeLights, f.Reason)
	}
	o, ok := w.objects[objectID]
	if !ok || !o.LightCube {
		return fmt.Errorf("%s: object %d is not a visible light cube", OpCubeLights, objectID)
	}
	w.cubeLights[objectID] = color
	return nil
}

// action finishes after a number of Done checks.
type action struct {
	world     *World
	op        string
	remaining int
	effect    func(*World)
	failure   *Failure

	finished bool
	ok       bool
	code     string
	reason   string
}

func (a *action) Done() bool {
	w := a.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if a.finished {
		return true
	}
	a.remaining--
	if a.remaining > 0 {
		return false
	}
	a.finished = true
	if a.failure != nil {
		a.code, a.reason = a.failure.Code, a.failure.Reason
		return true
	}
	a.ok = true
	if a.effect != nil {
		a.effect(w)
	}
	return true
}

func (a *action) Outcome() (bool, string, string) {
	a.world.mu.Lock()
	defer a.world.mu.Unlock()
	return a.ok, a.code, a.reason
}

func (a *action) Abort() {
	a.world.mu.Lock()
	defer a.world.mu.Unlock()
	if a.finished {
		return
	}
	a.finished = true
	a.code, a.reason = domain.CodeAborted, "aborted"
}
