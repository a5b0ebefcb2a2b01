package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/wmbridge/pkg/adapters/memory"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	v := domain.Int(1)
	snap := &domain.Snapshot{Agent: "a", Root: &domain.SnapshotNode{Name: "input-link", Children: []*domain.SnapshotNode{{Name: "n", Value: &v}}}}
	require.NoError(t, store.Save(ctx, "a", snap))

	// Mutating the caller's copy must not leak into the store
	*snap.Root.Children[0].Value = domain.Int(2)

	loaded, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.Int(1), *loaded.Lookup("n").Value)
}
