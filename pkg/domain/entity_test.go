package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafValue(t *testing.T, tree SubTree, key string) Value {
	t.Helper()
	leaf, ok := tree[key].(StaticLeaf)
	require.True(t, ok, "%s should be a static leaf", key)
	return ValueOf(leaf.Value)
}

func TestObjectObservation_Properties(t *testing.T) {
	t.Run("Light cube", func(t *testing.T) {
		obs := ObjectObservation{ID: 3, LightCube: true, CubeID: 1, Name: "paperclip", Connected: true, Liftable: true}
		props := obs.Properties()

		assert.Equal(t, String("led-cube"), leafValue(t, props, "type"))
		assert.Equal(t, Int(1), leafValue(t, props, "connected"))
		assert.Equal(t, Int(1), leafValue(t, props, "liftable"))
		assert.Equal(t, Float(-1), leafValue(t, props, "last-tapped"), "never tapped")
		assert.Equal(t, String("paperclip"), leafValue(t, props, "name"))
		assert.IsType(t, SubTree{}, props["pose"])
	})

	t.Run("Custom object splits type name", func(t *testing.T) {
		obs := ObjectObservation{ID: 9, TypeName: "box-red-large"}
		props := obs.Properties()

		assert.Equal(t, String("box"), leafValue(t, props, "type"))
		assert.Equal(t, String("redlarge"), leafValue(t, props, "name"))
		assert.NotContains(t, props, "cube-id")
	})
}

func TestFaceObservation_Properties(t *testing.T) {
	props := FaceObservation{ID: 2, ExpressionScore: 0.5}.Properties()

	assert.Equal(t, String("unknown"), leafValue(t, props, "name"))
	assert.Equal(t, Int(2), leafValue(t, props, "face-id"))
	assert.Equal(t, Float(0.5), leafValue(t, props, "exp-score"))
}

func TestEntityKind(t *testing.T) {
	assert.Equal(t, Handle("obj7"), KindObject.DefaultHandle(7))
	assert.Equal(t, Handle("face2"), KindFace.DefaultHandle(2))
	assert.Equal(t, "faces", KindFace.Root())

	k, err := ParseEntityKind("Faces")
	require.NoError(t, err)
	assert.Equal(t, KindFace, k)

	_, err = ParseEntityKind("marker")
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor(" Blue ")
	require.NoError(t, err)
	assert.Equal(t, ColorBlue, c)

	_, err = ParseColor("ultraviolet")
	assert.Error(t, err)
}

func TestSubTree_FreezeAndMerge(t *testing.T) {
	x := 1.0
	live := SubTree{
		"pose": SubTree{"x": LeafFunc(func() any { return x })},
		"name": StaticLeaf{Value: "cube"},
	}
	frozen := live.Freeze()
	x = 2.0

	pose := frozen["pose"].(SubTree)
	assert.Equal(t, Float(1), leafValue(t, pose, "x"), "frozen value must not follow the getter")

	merged := Merge(frozen, SubTree{"pose": SubTree{"y": StaticLeaf{Value: 5}}})
	mergedPose := merged["pose"].(SubTree)
	assert.Contains(t, mergedPose, "x")
	assert.Contains(t, mergedPose, "y")
	assert.Equal(t, []string{"name", "pose"}, merged.Keys())
}

func TestSubTree_FreezeNilGetter(t *testing.T) {
	live := SubTree{"pose": SubTree{"x": Leaf{}}}

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		ierr, ok := r.(*InvariantError)
		require.True(t, ok, "expected *InvariantError, got %T", r)
		assert.Equal(t, "freeze", ierr.Op)
		assert.Equal(t, "pose.x", ierr.Path)
	}()
	live.Freeze()
}
