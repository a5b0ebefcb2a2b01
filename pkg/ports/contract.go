package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(agent string, cycle uint64) *domain.Snapshot {
	v := domain.Float(10)
	return &domain.Snapshot{
		Agent: agent,
		Cycle: cycle,
		Taken: time.Now().UTC().Truncate(time.Millisecond),
		Root: &domain.SnapshotNode{
			Name: "input-link",
			Ref:  "I1",
			Children: []*domain.SnapshotNode{
				{Name: "objects", Ref: "S1", Children: []*domain.SnapshotNode{
					{Name: "obj7", Ref: "S2", Children: []*domain.SnapshotNode{
						{Name: "pose", Ref: "S3", Children: []*domain.SnapshotNode{
							{Name: "x", Ref: "L1", Value: &v},
						}},
					}},
				}},
			},
		},
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	agent := "contract-test-agent-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(agent, 3)

		err := store.Save(ctx, agent, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, agent)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.Agent, loaded.Agent)
		assert.Equal(t, snap.Cycle, loaded.Cycle)

		x := loaded.Lookup("objects.obj7.pose.x")
		require.NotNil(t, x, "nested terminal should survive persistence")
		require.NotNil(t, x.Value)
		assert.True(t, domain.Float(10).Equal(*x.Value), "value kind must be preserved")
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, agent, contractSnapshot(agent, 4)))
		require.NoError(t, store.Save(ctx, agent, contractSnapshot(agent, 5)))

		loaded, err := store.Load(ctx, agent)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), loaded.Cycle)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+agent)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, agent, contractSnapshot(agent, 1))
		require.NoError(t, err)

		err = store.Delete(ctx, agent)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, agent)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := agent + "-1"
		id2 := agent + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1, 1))
		_ = store.Save(ctx, id2, contractSnapshot(id2, 1))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		agents, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, agents, id1)
		assert.Contains(t, agents, id2)
	})
}
