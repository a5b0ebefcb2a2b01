package wm_test

import (
	"testing"

	"github.com/aretw0/wmbridge/internal/wm"
	"github.com/aretw0/wmbridge/pkg/adapters/memory"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T) (*wm.Tree, *wm.Node, *memory.Memory) {
	t.Helper()
	mem := memory.New()
	tree := wm.NewTree(mem)
	root := tree.Attach("", mem.InputRoot())
	return tree, root, mem
}

func poseSpec(p *domain.Pose) domain.SubTree {
	return domain.SubTree{
		"pose": domain.SubTree{
			"rot": domain.LeafFunc(func() any { return p.Rot }),
			"x":   domain.LeafFunc(func() any { return p.X }),
			"y":   domain.LeafFunc(func() any { return p.Y }),
			"z":   domain.LeafFunc(func() any { return p.Z }),
		},
	}
}

func TestSync_CreatesThenElidesUnchangedWrites(t *testing.T) {
	tree, root, mem := newTree(t)

	battery := 3.9
	spec := domain.SubTree{
		"battery-voltage": domain.LeafFunc(func() any { return battery }),
		"charging":        domain.StaticLeaf{Value: false},
		"serial":          domain.StaticLeaf{Value: "02e08032"},
		"lift": domain.SubTree{
			"ratio": domain.StaticLeaf{Value: 0.0},
		},
	}

	require.NoError(t, tree.Sync(root, spec))
	assert.Equal(t, domain.WriteStats{Creates: 5}, tree.Stats())

	v, ok := mem.Get(mem.InputRoot(), "charging")
	require.True(t, ok)
	assert.Equal(t, domain.Int(0), v, "booleans are written as integers")

	t.Run("Second pass writes nothing", func(t *testing.T) {
		before := len(mem.Journal())
		require.NoError(t, tree.Sync(root, spec))
		assert.Equal(t, before, len(mem.Journal()))
		assert.Equal(t, domain.WriteStats{Creates: 5}, tree.Stats())
	})

	t.Run("Changed getter rewrites only its terminal", func(t *testing.T) {
		battery = 3.7
		mem.ResetJournal()
		require.NoError(t, tree.Sync(root, spec))

		ops := mem.Journal()
		require.Len(t, ops, 1)
		assert.Equal(t, memory.OpUpdate, ops[0].Kind)
		assert.Equal(t, "battery-voltage", ops[0].Attr)
		assert.Equal(t, domain.Float(3.7), ops[0].Value)
	})

	t.Run("Keys absent from the subtree are not pruned", func(t *testing.T) {
		require.NoError(t, tree.Sync(root, domain.SubTree{"serial": domain.StaticLeaf{Value: "02e08032"}}))
		_, ok := tree.Lookup("lift.ratio")
		assert.True(t, ok)
	})
}

func TestSync_PoseScenario(t *testing.T) {
	tree, root, mem := newTree(t)
	objects, err := tree.AddBranch(root, "objects")
	require.NoError(t, err)
	obj, err := tree.AddBranch(objects, "obj7")
	require.NoError(t, err)

	pose := &domain.Pose{X: 10, Y: 20}
	require.NoError(t, tree.Sync(obj, poseSpec(pose)))
	assert.Equal(t, []string{"rot", "x", "y", "z"}, mem.Attrs(mem.InputRoot(), "objects.obj7.pose"))

	pose.X = 15
	mem.ResetJournal()
	require.NoError(t, tree.Sync(obj, poseSpec(pose)))

	ops := mem.Journal()
	require.Len(t, ops, 1, "only x changed")
	assert.Equal(t, "x", ops[0].Attr)
	assert.Equal(t, domain.Float(15), ops[0].Value)

	mem.ResetJournal()
	require.NoError(t, tree.Destroy(obj))

	var destroyed []string
	for _, op := range mem.Journal() {
		require.Equal(t, memory.OpDestroy, op.Kind)
		destroyed = append(destroyed, op.Attr)
	}
	assert.Equal(t, []string{"rot", "x", "y", "z", "pose", "obj7"}, destroyed, "leaves before their parents")
	assert.False(t, mem.Has(mem.InputRoot(), "objects.obj7"))
	_, ok := tree.Lookup("objects.obj7.pose.x")
	assert.False(t, ok, "index must forget destroyed nodes")
	assert.Equal(t, 0, objects.Len())
}

func TestTree_InvariantViolations(t *testing.T) {
	tests := []struct {
		name string
		run  func(tree *wm.Tree, root *wm.Node)
	}{
		{
			name: "Duplicate Leaf",
			run: func(tree *wm.Tree, root *wm.Node) {
				_, _ = tree.AddLeaf(root, "face-count", domain.Int(0))
				_, _ = tree.AddLeaf(root, "face-count", domain.Int(1))
			},
		},
		{
			name: "Duplicate Branch Over Leaf",
			run: func(tree *wm.Tree, root *wm.Node) {
				_, _ = tree.AddLeaf(root, "pose", domain.Int(0))
				_, _ = tree.AddBranch(root, "pose")
			},
		},
		{
			name: "Terminal Becomes Sub-Tree",
			run: func(tree *wm.Tree, root *wm.Node) {
				_ = tree.Sync(root, domain.SubTree{"lift": domain.StaticLeaf{Value: 1}})
				_ = tree.Sync(root, domain.SubTree{"lift": domain.SubTree{"ratio": domain.StaticLeaf{Value: 1}}})
			},
		},
		{
			name: "Sub-Tree Becomes Terminal",
			run: func(tree *wm.Tree, root *wm.Node) {
				_ = tree.Sync(root, domain.SubTree{"lift": domain.SubTree{}})
				_ = tree.Sync(root, domain.SubTree{"lift": domain.StaticLeaf{Value: 1}})
			},
		},
		{
			name: "Destroy Twice",
			run: func(tree *wm.Tree, root *wm.Node) {
				n, _ := tree.AddBranch(root, "objects")
				_ = tree.Destroy(n)
				_ = tree.Destroy(n)
			},
		},
		{
			name: "Destroy Adopted Root",
			run: func(tree *wm.Tree, root *wm.Node) {
				_ = tree.Destroy(root)
			},
		},
		{
			name: "Leaf Without Getter",
			run: func(tree *wm.Tree, root *wm.Node) {
				_ = tree.Sync(root, domain.SubTree{"x": domain.Leaf{}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, root, _ := newTree(t)
			defer func() {
				r := recover()
				require.NotNil(t, r, "expected a panic")
				_, ok := r.(*domain.InvariantError)
				assert.True(t, ok, "expected *domain.InvariantError, got %T", r)
			}()
			tt.run(tree, root)
		})
	}
}

func TestTree_AttachDetach(t *testing.T) {
	tree, _, mem := newTree(t)

	cmd, err := mem.PlaceCommand("move-lift", map[string]any{"height": 0.5})
	require.NoError(t, err)

	node := tree.Attach("@"+string(cmd.Ref()), cmd.Ref())
	_, err = tree.Put(node, domain.AttrStatus, domain.String("running"))
	require.NoError(t, err)
	_, err = tree.Put(node, domain.AttrStatus, domain.String("complete"))
	require.NoError(t, err)

	v, ok := mem.Get(cmd.Ref(), "status")
	require.True(t, ok)
	assert.Equal(t, domain.String("complete"), v)

	tree.Detach(node)
	_, ok = tree.Lookup("@" + string(cmd.Ref()) + ".status")
	assert.False(t, ok)
	assert.True(t, mem.Exists(cmd.Ref()), "detach leaves the memory untouched")
}

func TestNode_Snapshot(t *testing.T) {
	tree, root, _ := newTree(t)
	require.NoError(t, tree.Sync(root, domain.SubTree{
		"head-angle": domain.StaticLeaf{Value: 10.5},
		"pose":       domain.SubTree{"x": domain.StaticLeaf{Value: 1}},
	}))

	snap := &domain.Snapshot{Root: root.Snapshot()}
	got := snap.Flatten()
	want := map[string]domain.Value{
		"head-angle": domain.Float(10.5),
		"pose.x":     domain.Int(1),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
	}
}
