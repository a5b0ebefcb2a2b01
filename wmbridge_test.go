package wmbridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/internal/testutils"
	"github.com/aretw0/wmbridge/pkg/adapters/memory"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBridge_Cycle(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	robot := new(testutils.MockRobot)
	perception := new(testutils.StubPerception)
	store := memory.NewStore()

	var added []domain.Handle
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bridge, err := wmbridge.New(mem, robot, perception,
		wmbridge.WithAgentName("cozmo"),
		wmbridge.WithUnits(wmbridge.UnitsMeters),
		wmbridge.WithSnapshotStore(store),
		wmbridge.WithClock(func() time.Time { return fixed }),
		wmbridge.WithLifecycleHooks(domain.LifecycleHooks{
			OnEntityAdded: func(_ context.Context, e *domain.EntityEvent) { added = append(added, e.Handle) },
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "cozmo", bridge.Agent())

	perception.SetObjects(domain.ObjectObservation{ID: 7, LightCube: true, Pose: domain.Pose{X: 10}})
	require.NoError(t, bridge.InputPhase(ctx))

	assert.Equal(t, []domain.Handle{"obj7"}, added)
	assert.Equal(t, []domain.Handle{"obj7"}, bridge.Entities(domain.KindObject))
	assert.Equal(t, fixed, bridge.Snapshot().Taken)

	action := testutils.NewFakeAction()
	robot.On("GoToObject", mock.Anything, 7, 250.0).Return(action, nil)
	cmd, err := mem.PlaceCommand("go-to-object", map[string]any{"object-id": "obj7", "distance": 0.25})
	require.NoError(t, err)
	require.NoError(t, bridge.OutputPhase(ctx, []ports.CommandNode{cmd}))

	status, _ := mem.Get(cmd.Ref(), domain.AttrStatus)
	assert.Equal(t, "running", status.Str)
	assert.Equal(t, 1, bridge.Stats().Pending)

	action.Succeed()
	require.NoError(t, bridge.InputPhase(ctx))
	status, _ = mem.Get(cmd.Ref(), domain.AttrStatus)
	assert.Equal(t, "complete", status.Str)

	saved, err := store.Load(ctx, "cozmo")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), saved.Cycle)

	require.NoError(t, bridge.Close(ctx))
	assert.Empty(t, mem.Attrs(mem.InputRoot(), "objects"))
}

func TestBridge_Commands(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	robot := new(testutils.MockRobot)

	bridge, err := wmbridge.New(mem, robot, new(testutils.StubPerception), wmbridge.WithCommands("stop"))
	require.NoError(t, err)

	cmd, err := mem.PlaceCommand("drive-forward", map[string]any{"distance": 1, "speed": 1})
	require.NoError(t, err)
	require.NoError(t, bridge.OutputPhase(ctx, []ports.CommandNode{cmd}))

	assert.False(t, mem.Has(cmd.Ref(), domain.AttrStatus), "disabled verbs are ignored")
	robot.AssertNotCalled(t, "DriveStraight", mock.Anything, mock.Anything, mock.Anything)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := wmbridge.New(memory.New(), new(testutils.MockRobot), new(testutils.StubPerception),
		wmbridge.WithCommands("moonwalk"))
	assert.ErrorIs(t, err, domain.ErrUnknownCommand)

	_, err = wmbridge.ParseUnits("parsecs")
	assert.Error(t, err)
	_, err = wmbridge.ParseReappearPolicy("sometimes")
	assert.Error(t, err)
	assert.Contains(t, wmbridge.Verbs(), "drive-forward")
	assert.NotEmpty(t, wmbridge.Version)
}

func TestBridge_EventQueue(t *testing.T) {
	bridge, err := wmbridge.New(memory.New(), new(testutils.MockRobot), new(testutils.StubPerception),
		wmbridge.WithEventQueueSize(1))
	require.NoError(t, err)

	require.NoError(t, bridge.Link(domain.KindFace, "face1", "face2"))
	assert.ErrorIs(t, bridge.Link(domain.KindFace, "face3", "face4"), domain.ErrQueueFull)
	assert.Error(t, bridge.Link("robot", "a", "b"))
	assert.Equal(t, uint64(1), bridge.Stats().Dropped)
}
