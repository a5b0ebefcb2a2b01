package testutils

import (
	"context"
	"sync"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/stretchr/testify/mock"
)

// MockRobot implements ports.Robot with testify/mock.
// Action-returning methods expect the first return value to be a ports.Action or nil.
type MockRobot struct {
	mock.Mock
}

var _ ports.Robot = (*MockRobot)(nil)

func (m *MockRobot) action(args mock.Arguments) (ports.Action, error) {
	a, _ := args.Get(0).(ports.Action)
	return a, args.Error(1)
}

func (m *MockRobot) DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) (ports.Action, error) {
	return m.action(m.Called(ctx, distanceMM, speedMMPS))
}

func (m *MockRobot) TurnInPlace(ctx context.Context, angleDeg, speedDegPS float64) (ports.Action, error) {
	return m.action(m.Called(ctx, angleDeg, speedDegPS))
}

func (m *MockRobot) SetLiftHeight(ctx context.Context, ratio float64) (ports.Action, error) {
	return m.action(m.Called(ctx, ratio))
}

func (m *MockRobot) SetHeadAngle(ctx context.Context, angleDeg float64) (ports.Action, error) {
	return m.action(m.Called(ctx, angleDeg))
}

func (m *MockRobot) GoToObject(ctx context.Context, objectID int, distanceMM float64) (ports.Action, error) {
	return m.action(m.Called(ctx, objectID, distanceMM))
}

func (m *MockRobot) PickUpObject(ctx context.Context, objectID int) (ports.Action, error) {
	return m.action(m.Called(ctx, objectID))
}

func (m *MockRobot) PlaceOnObject(ctx context.Context, objectID int) (ports.Action, error) {
	return m.action(m.Called(ctx, objectID))
}

func (m *MockRobot) PlaceObjectDown(ctx context.Context) (ports.Action, error) {
	return m.action(m.Called(ctx))
}

func (m *MockRobot) DockWithCube(ctx context.Context, objectID int) (ports.Action, error) {
	return m.action(m.Called(ctx, objectID))
}

func (m *MockRobot) TurnTowardsFace(ctx context.Context, faceID int) (ports.Action, error) {
	return m.action(m.Called(ctx, faceID))
}

func (m *MockRobot) SetBackpackLights(ctx context.Context, color domain.Color) error {
	return m.Called(ctx, color).Error(0)
}

func (m *MockRobot) SetCubeLights(ctx context.Context, objectID int, color domain.Color) error {
	return m.Called(ctx, objectID, color).Error(0)
}

// FakeAction is an Action finished by the test.
type FakeAction struct {
	mu      sync.Mutex
	done    bool
	ok      bool
	code    string
	reason  string
	aborted bool
}

var _ ports.Action = (*FakeAction)(nil)

// NewFakeAction returns a running action.
func NewFakeAction() *FakeAction { return &FakeAction{} }

// Succeed finishes the action successfully.
func (a *FakeAction) Succeed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.done, a.ok = true, true
}

// Fail finishes the action with a failure code and reason.
func (a *FakeAction) Fail(code, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.done, a.ok, a.code, a.reason = true, false, code, reason
}

func (a *FakeAction) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

func (a *FakeAction) Outcome() (bool, string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ok, a.code, a.reason
}

func (a *FakeAction) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	if !a.done {
		a.done, a.ok, a.code, a.reason = true, false, domain.CodeAborted, "aborted"
	}
}

// Aborted reports whether Abort was called.
func (a *FakeAction) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aborted
}

// StubPerception returns whatever snapshot the test last set.
type StubPerception struct {
	mu   sync.Mutex
	snap domain.PerceptionSnapshot
	err  error
}

var _ ports.Perception = (*StubPerception)(nil)

// Set replaces the snapshot returned from now on.
func (p *StubPerception) Set(snap domain.PerceptionSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
}

// SetObjects replaces only the visible objects.
func (p *StubPerception) SetObjects(objs ...domain.ObjectObservation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Objects = objs
}

// SetFaces replaces only the visible faces.
func (p *StubPerception) SetFaces(faces ...domain.FaceObservation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Faces = faces
}

// SetError makes Snapshot fail.
func (p *StubPerception) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *StubPerception) Snapshot(ctx context.Context) (domain.PerceptionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.err
}

// Observations converts concrete observations to the interface slice.
func Observations[T domain.Observation](in ...T) []domain.Observation {
	out := make([]domain.Observation, 0, len(in))
	for _, o := range in {
		out = append(out, o)
	}
	return out
}
