package gencanvas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewNode verifies node creation defaults.
func TestNewNode(t *testing.T) {
	n := NewNode(TypeImage)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, TypeImage, n.Type)
	assert.Equal(t, StatusIdle, n.Status)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Equal(t, n.CreatedAt, n.UpdatedAt)
}

// TestNewNode_UniqueIDs verifies ID generation does not collide.
func TestNewNode_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewNode(TypeImage).ID
		assert.False(t, seen[id])
		seen[id] = true
	}
}

// TestNodeType_Valid tests the closed type set.
func TestNodeType_Valid(t *testing.T) {
	for _, nt := range []NodeType{TypeImage, TypeVideo, TypeKlingVideo, TypeLocalImage, TypeCameraAngle} {
		assert.True(t, nt.Valid(), string(nt))
	}
	assert.False(t, NodeType("audio").Valid())
	assert.False(t, NodeType("").Valid())
}

// TestNodeType_Kind tests artifact kind derivation.
func TestNodeType_Kind(t *testing.T) {
	assert.Equal(t, KindImage, TypeImage.Kind())
	assert.Equal(t, KindImage, TypeLocalImage.Kind())
	assert.Equal(t, KindImage, TypeCameraAngle.Kind())
	assert.Equal(t, KindVideo, TypeVideo.Kind())
	assert.Equal(t, KindVideo, TypeKlingVideo.Kind())
}

// TestNode_JSONRoundTrip tests the wire shape the canvas client relies on.
func TestNode_JSONRoundTrip(t *testing.T) {
	n := NewNode(TypeCameraAngle)
	n.Prompt = "orbit right"
	n.ParentIDs = []string{"p1"}
	n.Params = GenerationParams{
		Camera: CameraParams{Rotation: 45, Tilt: -10, Zoom: 7, WideAngle: true},
	}

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parentIds":["p1"]`)
	assert.Contains(t, string(data), `"rotation":45`)

	var back Node
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, n.ID, back.ID)
	assert.Equal(t, n.Params.Camera, back.Params.Camera)
}
