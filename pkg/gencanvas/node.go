package gencanvas

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a node's generation.
type Status string

// Node lifecycle states.
const (
	// StatusIdle means no generation has been requested (or the last
	// result was cleared by an edit).
	StatusIdle Status = "idle"

	// StatusLoading means a generation request is in flight. Nodes in
	// this state are watched by the recovery monitor.
	StatusLoading Status = "loading"

	// StatusSuccess means the node has a result. A node is never
	// StatusSuccess without a ResultURL.
	StatusSuccess Status = "success"

	// StatusError means the last generation failed; ErrorMessage holds
	// the user-facing reason.
	StatusError Status = "error"
)

// NodeType identifies which provider adapter serves a node.
// The set is closed; the dispatcher routes through a lookup table
// keyed by this type.
type NodeType string

// Known node types.
const (
	// TypeImage generates still images via the Gemini/Imagen API.
	TypeImage NodeType = "image"

	// TypeVideo generates video via the Veo long-running API.
	TypeVideo NodeType = "video"

	// TypeKlingVideo generates video via the Fal.ai Kling queue.
	TypeKlingVideo NodeType = "kling-video"

	// TypeLocalImage generates images with a local diffusion pipeline
	// (subprocess).
	TypeLocalImage NodeType = "local-image"

	// TypeCameraAngle re-renders an input image from a new camera angle
	// via the self-hosted Qwen image-edit service.
	TypeCameraAngle NodeType = "camera-angle"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case TypeImage, TypeVideo, TypeKlingVideo, TypeLocalImage, TypeCameraAngle:
		return true
	}
	return false
}

// Kind returns the artifact kind a node of this type produces.
func (t NodeType) Kind() ArtifactKind {
	switch t {
	case TypeVideo, TypeKlingVideo:
		return KindVideo
	default:
		return KindImage
	}
}

// ArtifactKind distinguishes generated artifact media types.
type ArtifactKind string

// Artifact kinds.
const (
	KindImage ArtifactKind = "image"
	KindVideo ArtifactKind = "video"
)

// CameraParams are the camera-angle controls for TypeCameraAngle nodes.
// Rotation is horizontal degrees (positive = right), Tilt is vertical
// degrees (positive = bird's-eye), Zoom is 0-10 (higher = closer).
type CameraParams struct {
	Rotation  float64 `json:"rotation"`
	Tilt      float64 `json:"tilt"`
	Zoom      float64 `json:"zoom"`
	WideAngle bool    `json:"wideAngle"`
}

// GenerationParams is the per-node generation configuration read by the
// dispatcher when assembling a provider request. Fields irrelevant to a
// node's type are ignored by its adapter.
type GenerationParams struct {
	AspectRatio    string       `json:"aspectRatio,omitempty"`
	Resolution     string       `json:"resolution,omitempty"`
	Model          string       `json:"model,omitempty"`
	NegativePrompt string       `json:"negativePrompt,omitempty"`
	Seed           int64        `json:"seed,omitempty"`
	Steps          int          `json:"steps,omitempty"`
	GuidanceScale  float64      `json:"guidanceScale,omitempty"`
	ModelPath      string       `json:"modelPath,omitempty"`
	Architecture   string       `json:"architecture,omitempty"`
	Camera         CameraParams `json:"camera,omitempty"`
}

// Node is a unit of work on the canvas: one generation step and its
// result. The ID is immutable and is the correlation key for status
// polling. ParentIDs is ordered; parents contribute inputs in insertion
// order.
type Node struct {
	ID           string           `json:"id"`
	Type         NodeType         `json:"type"`
	Status       Status           `json:"status"`
	Prompt       string           `json:"prompt"`
	ParentIDs    []string         `json:"parentIds,omitempty"`
	ResultURL    string           `json:"resultUrl,omitempty"`
	LastFrame    string           `json:"lastFrame,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Params       GenerationParams `json:"params"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// NewNode creates an idle node of the given type with a fresh ID.
func NewNode(t NodeType) *Node {
	now := time.Now().UTC()
	return &Node{
		ID:        uuid.New().String(),
		Type:      t,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NodeUpdate is a partial update merged into a node field by field.
// Nil fields are left untouched; this is what makes concurrent merges
// from the dispatcher and the recovery monitor convergent.
type NodeUpdate struct {
	Status       *Status
	Prompt       *string
	ResultURL    *string
	LastFrame    *string
	ErrorMessage *string
	Params       *GenerationParams
}

// ptr is a convenience for building NodeUpdate literals.
func ptr[T any](v T) *T { return &v }
