package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/adapters/memory"
	"github.com/aretw0/wmbridge/pkg/adapters/sim"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) InputPhase(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBridge) OutputPhase(ctx context.Context, commands []ports.CommandNode) error {
	return m.Called(ctx, commands).Error(0)
}

func (m *MockBridge) Link(kind domain.EntityKind, src, dest domain.Handle) error {
	return m.Called(kind, src, dest).Error(0)
}

func (m *MockBridge) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBridge) Snapshot() *domain.Snapshot {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Snapshot)
}

func (m *MockBridge) Stats() wmbridge.Stats {
	return m.Called().Get(0).(wmbridge.Stats)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Step(ctx context.Context, cycle uint64) ([]ports.CommandNode, error) {
	args := m.Called(ctx, cycle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.CommandNode), args.Error(1)
}

func TestRunner_MaxCycles(t *testing.T) {
	bridge := new(MockBridge)
	bridge.On("InputPhase", mock.Anything).Return(nil)
	bridge.On("OutputPhase", mock.Anything, mock.Anything).Return(nil)
	bridge.On("Stop", mock.Anything).Return(nil).Once()

	engine := new(MockEngine)
	engine.On("Step", mock.Anything, mock.Anything).Return(nil, nil)

	r := NewRunner(bridge, engine, WithMaxCycles(3))
	cycles, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cycles)

	bridge.AssertNumberOfCalls(t, "InputPhase", 3)
	bridge.AssertNumberOfCalls(t, "OutputPhase", 3)
	engine.AssertCalled(t, "Step", mock.Anything, uint64(1))
	engine.AssertCalled(t, "Step", mock.Anything, uint64(3))
	bridge.AssertExpectations(t)
}

func TestRunner_ContextCancelStopsActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := new(MockBridge)
	bridge.On("InputPhase", mock.Anything).Return(nil)
	bridge.On("OutputPhase", mock.Anything, mock.Anything).Return(nil)
	bridge.On("Snapshot").Return(nil)
	bridge.On("Stop", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })).Return(nil).Once()

	engine := new(MockEngine)
	engine.On("Step", mock.Anything, mock.Anything).Return(nil, nil)

	r := NewRunner(bridge, engine,
		WithPeriod(time.Millisecond),
		WithOnCycle(func(_ context.Context, cycle uint64, _ *domain.Snapshot) {
			if cycle == 3 {
				cancel()
			}
		}),
	)

	cycles, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cycles)
	bridge.AssertNumberOfCalls(t, "OutputPhase", 2)
	bridge.AssertExpectations(t)
}

func TestRunner_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("input", func(t *testing.T) {
		bridge := new(MockBridge)
		bridge.On("InputPhase", mock.Anything).Return(boom)
		bridge.On("Stop", mock.Anything).Return(nil)

		_, err := NewRunner(bridge, new(MockEngine)).Run(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "input phase 1")
		bridge.AssertCalled(t, "Stop", mock.Anything)
	})

	t.Run("step", func(t *testing.T) {
		bridge := new(MockBridge)
		bridge.On("InputPhase", mock.Anything).Return(nil)
		bridge.On("Stop", mock.Anything).Return(nil)
		engine := new(MockEngine)
		engine.On("Step", mock.Anything, uint64(1)).Return(nil, boom)

		_, err := NewRunner(bridge, engine).Run(context.Background())
		assert.ErrorIs(t, err, boom)
		bridge.AssertNotCalled(t, "OutputPhase", mock.Anything, mock.Anything)
	})

	t.Run("output", func(t *testing.T) {
		bridge := new(MockBridge)
		bridge.On("InputPhase", mock.Anything).Return(nil)
		bridge.On("OutputPhase", mock.Anything, mock.Anything).Return(boom)
		bridge.On("Stop", mock.Anything).Return(errors.New("stop failed"))
		engine := new(MockEngine)
		engine.On("Step", mock.Anything, mock.Anything).Return(nil, nil)

		_, err := NewRunner(bridge, engine).Run(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "output phase 1")
	})
}

func TestRunner_HaltWithoutPendingActions(t *testing.T) {
	bridge := new(MockBridge)
	bridge.On("InputPhase", mock.Anything).Return(nil)
	bridge.On("OutputPhase", mock.Anything, mock.Anything).Return(nil)
	bridge.On("Stats").Return(wmbridge.Stats{})
	bridge.On("Stop", mock.Anything).Return(nil)

	engine := new(MockEngine)
	engine.On("Step", mock.Anything, uint64(1)).Return(nil, nil)
	engine.On("Step", mock.Anything, uint64(2)).Return(nil, ErrHalt)

	cycles, err := NewRunner(bridge, engine).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cycles)
	bridge.AssertNumberOfCalls(t, "InputPhase", 2)
}

func TestRunner_ScriptedCycle(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	world := sim.NewWorld(sim.Scenario{
		Objects:     []domain.ObjectObservation{{ID: 3, LightCube: true, CubeID: 1}},
		ActionPolls: 2,
	})
	bridge, err := wmbridge.New(mem, world, world)
	require.NoError(t, err)

	script, err := ParseScript([]byte(`
steps:
  - verb: drive-forward
    params: {distance: 100, speed: 50}
  - cycle: 3
    verb: change-block-color
    params: {color: red, object-id: obj3}
`))
	require.NoError(t, err)

	var placed []*memory.Command
	engine := NewScriptedEngine(script, func(verb string, params map[string]any) (ports.CommandNode, error) {
		cmd, err := mem.PlaceCommand(verb, params)
		if err == nil {
			placed = append(placed, cmd)
		}
		return cmd, err
	})

	var seen []uint64
	r := NewRunner(bridge, engine, WithOnCycle(func(_ context.Context, cycle uint64, snap *domain.Snapshot) {
		require.NotNil(t, snap)
		seen = append(seen, snap.Cycle)
	}))
	cycles, err := r.Run(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cycles, uint64(3))
	assert.Equal(t, cycles, uint64(len(seen)))
	require.Len(t, placed, 2)

	status, _ := mem.Get(placed[0].Ref(), "status")
	assert.Equal(t, domain.String("complete"), status)
	status, _ = mem.Get(placed[1].Ref(), "status")
	assert.Equal(t, domain.String("complete"), status)

	assert.Equal(t, domain.ColorRed, world.CubeLights(3))
	snap, err := world.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Robot.Pose.X)
}
