package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/wmbridge/internal/testutils"
	"github.com/aretw0/wmbridge/pkg/adapters/memory"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	mem        *memory.Memory
	robot      *testutils.MockRobot
	perception *testutils.StubPerception
	engine     *Engine
}

func newEngineFixture(t *testing.T, cfg Config) *engineFixture {
	t.Helper()
	f := &engineFixture{
		mem:        memory.New(),
		robot:      new(testutils.MockRobot),
		perception: new(testutils.StubPerception),
	}
	e, err := NewEngine(f.mem, f.robot, f.perception, cfg)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *engineFixture) input(t *testing.T, path string) domain.Value {
	t.Helper()
	v, ok := f.mem.Get(f.mem.InputRoot(), path)
	require.True(t, ok, "missing input %s", path)
	return v
}

func robotState() domain.RobotState {
	return domain.RobotState{
		RobotID:        1,
		Serial:         "45a1",
		BatteryVoltage: 3.9,
		HeadAngle:      10,
		LiftHeight:     32,
		LiftRatio:      0,
		Pose:           domain.Pose{X: 1, Y: 2, Z: 0, Rot: 90},
	}
}

func TestEngine_InputPhase(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{Agent: "cozmo"})
	f.perception.Set(domain.PerceptionSnapshot{
		Robot:   robotState(),
		Objects: []domain.ObjectObservation{cube(7, 10), cube(3, 0)},
		Faces:   []domain.FaceObservation{{ID: 1, Name: "ana"}},
	})

	require.NoError(t, f.engine.InputPhase(ctx))

	assert.Equal(t, domain.Int(2), f.input(t, "object-count"))
	assert.Equal(t, domain.Int(1), f.input(t, "face-count"))
	assert.Equal(t, domain.Float(3.9), f.input(t, "battery-voltage"))
	assert.Equal(t, domain.String("45a1"), f.input(t, "serial"))
	assert.Equal(t, domain.Float(90), f.input(t, "pose.rot"))
	assert.Equal(t, domain.Float(32), f.input(t, "lift.height"))
	assert.Equal(t, domain.String(domain.NoneValue), f.input(t, "holding-object"))
	assert.Equal(t, domain.Float(10), f.input(t, "objects.obj7.pose.x"))
	assert.Equal(t, domain.String("ana"), f.input(t, "faces.face1.name"))

	snap := f.engine.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "cozmo", snap.Agent)
	assert.Equal(t, uint64(1), snap.Cycle)
	assert.Equal(t, "input-link", snap.Root.Name)
	assert.Equal(t, []domain.Handle{"obj3", "obj7"}, f.engine.Entities(domain.KindObject))
	assert.Equal(t, []domain.Handle{"face1"}, f.engine.Entities(domain.KindFace))

	stats := f.engine.Stats()
	assert.Equal(t, uint64(1), stats.Cycle)
	assert.Equal(t, 2, stats.Objects)
	assert.Equal(t, 1, stats.Faces)
}

func TestEngine_InputPhase_NoRedundantWrites(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})
	f.perception.Set(domain.PerceptionSnapshot{Robot: robotState(), Objects: []domain.ObjectObservation{cube(7, 10)}})

	require.NoError(t, f.engine.InputPhase(ctx))
	f.mem.ResetJournal()
	require.NoError(t, f.engine.InputPhase(ctx))
	assert.Empty(t, f.mem.Journal())

	st := robotState()
	st.BatteryVoltage = 3.7
	f.perception.Set(domain.PerceptionSnapshot{Robot: st, Objects: []domain.ObjectObservation{cube(7, 10)}})
	require.NoError(t, f.engine.InputPhase(ctx))

	ops := f.mem.Journal()
	require.Len(t, ops, 1)
	assert.Equal(t, memory.OpUpdate, ops[0].Kind)
	assert.Equal(t, domain.Float(3.7), ops[0].Value)
}

func TestEngine_HoldingObject(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	st := robotState()
	st.CarryingBlock = true
	st.CarryingObjectID = 7
	f.perception.Set(domain.PerceptionSnapshot{Robot: st, Objects: []domain.ObjectObservation{cube(7, 0)}})
	require.NoError(t, f.engine.InputPhase(ctx))

	assert.Equal(t, domain.String("obj7"), f.input(t, "holding-object"))
	assert.Equal(t, domain.Int(1), f.input(t, "carrying-block"))

	// Linked handles are reported under their new name.
	require.NoError(t, f.engine.Link(domain.KindObject, "obj7", "obj1"))
	require.NoError(t, f.engine.InputPhase(ctx))
	assert.Equal(t, domain.String("obj1"), f.input(t, "holding-object"))
	assert.Equal(t, []domain.Handle{"obj1"}, f.engine.Entities(domain.KindObject))

	// Carrying something that is not tracked.
	st.CarryingObjectID = 42
	f.perception.Set(domain.PerceptionSnapshot{Robot: st})
	require.NoError(t, f.engine.InputPhase(ctx))
	assert.Equal(t, domain.String(domain.NoneValue), f.input(t, "holding-object"))
}

func TestEngine_Events(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})
	f.perception.Set(domain.PerceptionSnapshot{Objects: []domain.ObjectObservation{cube(1, 0)}})

	require.NoError(t, f.engine.Notify(domain.PerceptionEvent{Type: domain.EventDisappeared, Kind: domain.KindObject, ID: 1}))
	require.NoError(t, f.engine.Notify(domain.PerceptionEvent{
		Type:        domain.EventAppeared,
		Kind:        domain.KindFace,
		ID:          4,
		Observation: domain.FaceObservation{ID: 4},
	}))
	require.NoError(t, f.engine.InputPhase(ctx))

	assert.Empty(t, f.engine.Entities(domain.KindObject))
	assert.Equal(t, []domain.Handle{"face4"}, f.engine.Entities(domain.KindFace))
	assert.Equal(t, domain.String("unknown"), f.input(t, "faces.face4.name"))
}

func TestEngine_EventQueueFull(t *testing.T) {
	f := newEngineFixture(t, Config{EventQueue: 1})

	ev := domain.PerceptionEvent{Type: domain.EventDisappeared, Kind: domain.KindObject, ID: 1}
	require.NoError(t, f.engine.Notify(ev))
	assert.ErrorIs(t, f.engine.Notify(ev), domain.ErrQueueFull)
	assert.Equal(t, uint64(1), f.engine.Stats().Dropped)
}

func TestEngine_OutputPhase(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})
	f.perception.Set(domain.PerceptionSnapshot{Robot: robotState()})

	action := testutils.NewFakeAction()
	f.robot.On("DriveStraight", mock.Anything, 100.0, 50.0).Return(action, nil).Once()

	drive, err := f.mem.PlaceCommand(VerbDriveForward, map[string]any{"distance": 100, "speed": 50})
	require.NoError(t, err)
	lights, err := f.mem.PlaceCommand(VerbSetBackpackLights, map[string]any{"color": "ultraviolet"})
	require.NoError(t, err)

	require.NoError(t, f.engine.OutputPhase(ctx, []ports.CommandNode{drive, lights}))

	status := func(cmd *memory.Command) string {
		v, _ := f.mem.Get(cmd.Ref(), domain.AttrStatus)
		return v.Str
	}
	assert.Equal(t, "running", status(drive))
	assert.Equal(t, "failed", status(lights))
	assert.Equal(t, 1, f.engine.Stats().Pending)
	f.robot.AssertNotCalled(t, "SetBackpackLights", mock.Anything, mock.Anything)

	action.Succeed()
	require.NoError(t, f.engine.InputPhase(ctx))
	assert.Equal(t, "complete", status(drive))
	assert.Zero(t, f.engine.Stats().Pending)

	// Polling again leaves the resolved status alone.
	f.mem.ResetJournal()
	require.NoError(t, f.engine.InputPhase(ctx))
	assert.Empty(t, f.mem.Journal())
}

func TestEngine_Stop(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})
	action := testutils.NewFakeAction()
	f.robot.On("SetHeadAngle", mock.Anything, 20.0).Return(action, nil)

	cmd, err := f.mem.PlaceCommand(VerbMoveHead, map[string]any{"angle": 20})
	require.NoError(t, err)
	require.NoError(t, f.engine.OutputPhase(ctx, []ports.CommandNode{cmd}))

	require.NoError(t, f.engine.Stop(ctx))
	assert.True(t, action.Aborted())
	code, _ := f.mem.Get(cmd.Ref(), domain.AttrFailureCode)
	assert.Equal(t, domain.CodeAborted, code.Str)
}

func TestEngine_PersistsSnapshots(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	f := newEngineFixture(t, Config{Agent: "cozmo", Store: store})
	f.perception.Set(domain.PerceptionSnapshot{Objects: []domain.ObjectObservation{cube(7, 10)}})

	require.NoError(t, f.engine.InputPhase(ctx))

	saved, err := store.Load(ctx, "cozmo")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.Cycle)
	node := saved.Lookup("objects.obj7.pose.x")
	require.NotNil(t, node)
	assert.Equal(t, domain.Float(10), *node.Value)
}

func TestEngine_Hooks(t *testing.T) {
	ctx := context.Background()
	var phases []string
	f := newEngineFixture(t, Config{Hooks: domain.LifecycleHooks{
		OnPhase: func(_ context.Context, e *domain.PhaseEvent) { phases = append(phases, e.Phase) },
	}})
	f.robot.On("PlaceObjectDown", mock.Anything).Return(nil, nil)

	cmd, err := f.mem.PlaceCommand(VerbPlaceObjectDown, nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.InputPhase(ctx))
	require.NoError(t, f.engine.OutputPhase(ctx, []ports.CommandNode{cmd}))
	require.NoError(t, f.engine.OutputPhase(ctx, nil))

	assert.Equal(t, []string{domain.PhaseInput, domain.PhaseOutput}, phases)
}

func TestEngine_Close(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})
	f.perception.Set(domain.PerceptionSnapshot{
		Objects: []domain.ObjectObservation{cube(1, 0)},
		Faces:   []domain.FaceObservation{{ID: 2}},
	})
	require.NoError(t, f.engine.InputPhase(ctx))
	require.NoError(t, f.engine.Close(ctx))

	assert.Empty(t, f.mem.Attrs(f.mem.InputRoot(), "objects"))
	assert.Empty(t, f.mem.Attrs(f.mem.InputRoot(), "faces"))
	assert.Zero(t, f.engine.Stats().Objects)
}

func TestNewEngine_Errors(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, Config{})
	assert.Error(t, err)

	_, err = NewEngine(memory.New(), new(testutils.MockRobot), new(testutils.StubPerception), Config{Verbs: []string{"moonwalk"}})
	assert.ErrorIs(t, err, domain.ErrUnknownCommand)
}

func TestEngine_PerceptionError(t *testing.T) {
	f := newEngineFixture(t, Config{})
	f.perception.SetError(errors.New("camera offline"))

	err := f.engine.InputPhase(context.Background())
	assert.ErrorContains(t, err, "camera offline")
	assert.Nil(t, f.engine.Snapshot())
}
