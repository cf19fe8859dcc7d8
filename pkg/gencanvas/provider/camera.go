package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// Camera defaults.
const (
	DefaultCameraSteps   = 4
	DefaultCameraTimeout = 2 * time.Minute
)

// Camera re-renders an input image from a new viewpoint through the
// self-hosted Qwen image-edit service. It is synchronous: the service
// returns the edited image inline.
type Camera struct {
	baseURL string
	client  *http.Client
	steps   int
	logger  *slog.Logger
}

var _ gencanvas.Provider = (*Camera)(nil)

// CameraOption configures a Camera adapter.
type CameraOption func(*Camera)

// WithCameraHTTPClient sets the HTTP client used for service calls.
func WithCameraHTTPClient(c *http.Client) CameraOption {
	return func(ca *Camera) {
		if c != nil {
			ca.client = c
		}
	}
}

// WithCameraSteps sets the inference step count. Default: DefaultCameraSteps.
func WithCameraSteps(n int) CameraOption {
	return func(ca *Camera) {
		if n > 0 {
			ca.steps = n
		}
	}
}

// WithCameraLogger attaches a logger for debug traces of derived prompts.
func WithCameraLogger(l *slog.Logger) CameraOption {
	return func(ca *Camera) { ca.logger = l }
}

// NewCamera creates a camera-angle adapter targeting the service at
// baseURL.
func NewCamera(baseURL string, opts ...CameraOption) *Camera {
	ca := &Camera{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultCameraTimeout},
		steps:   DefaultCameraSteps,
	}
	for _, opt := range opts {
		opt(ca)
	}
	return ca
}

// Mode implements gencanvas.Provider.
func (ca *Camera) Mode() gencanvas.Mode { return gencanvas.ModeSync }

type cameraRequest struct {
	Image     string  `json:"image"`
	Rotation  float64 `json:"rotation"`
	Tilt      float64 `json:"tilt"`
	Zoom      float64 `json:"zoom"`
	WideAngle bool    `json:"wide_angle"`
	Seed      *int64  `json:"seed,omitempty"`
	NumSteps  int     `json:"num_steps"`
}

type cameraResponse struct {
	Image           string  `json:"image"`
	Prompt          string  `json:"prompt"`
	Seed            int64   `json:"seed"`
	InferenceTimeMS float64 `json:"inference_time_ms"`
	Detail          string  `json:"detail,omitempty"`
}

// Generate implements gencanvas.Provider. The first input is the image
// to re-render; camera controls come from the node's params.
func (ca *Camera) Generate(ctx context.Context, req gencanvas.Request) (*gencanvas.Result, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("camera: an input image is required")
	}
	input, err := resolveInput(ctx, ca.client, req.Inputs[0])
	if err != nil {
		return nil, fmt.Errorf("camera: resolve input: %w", err)
	}

	cam := req.Params.Camera
	body := cameraRequest{
		Image:     input.Base64,
		Rotation:  cam.Rotation,
		Tilt:      cam.Tilt,
		Zoom:      cam.Zoom,
		WideAngle: cam.WideAngle,
		NumSteps:  ca.steps,
	}
	if req.Params.Steps > 0 {
		body.NumSteps = req.Params.Steps
	}
	if req.Params.Seed != 0 {
		seed := req.Params.Seed
		body.Seed = &seed
	}

	if ca.logger != nil {
		ca.logger.DebugContext(ctx, "camera prompt derived",
			"node_id", req.NodeID,
			"prompt", BuildCameraPrompt(cam))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("camera: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ca.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("camera: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := ca.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("camera: %s", readErrorBody(resp))
	}

	var out cameraResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("camera: decode response: %w", err)
	}
	if out.Image == "" {
		return nil, errors.New("camera: service returned no image")
	}

	d := inlineData{MIMEType: "image/png", Base64: out.Image}
	return &gencanvas.Result{URL: d.dataURI(), Kind: gencanvas.KindImage}, nil
}

// Bilingual movement templates matching the Qwen LoRA training data.
var cameraTemplates = map[string]string{
	"rotate_left":  "将镜头向左旋转%d度 Rotate the camera %d degrees to the left.",
	"rotate_right": "将镜头向右旋转%d度 Rotate the camera %d degrees to the right.",
	"birds_eye":    "将相机转向鸟瞰视角 Turn the camera to a bird's-eye view.",
	"worms_eye":    "将相机切换到仰视视角 Turn the camera to a worm's-eye view.",
	"close_up":     "将镜头转为特写镜头 Turn the camera to a close-up.",
	"wide_angle":   "将镜头转为广角镜头 Turn the camera to a wide-angle lens.",
	"no_movement":  "no camera movement",
}

// BuildCameraPrompt converts camera controls into the movement prompt
// the image-edit model was trained on. Rotation keeps its exact degree
// value; tilt and zoom become categorical once they pass their
// thresholds (tilt beyond +/-5 degrees, zoom above 5).
func BuildCameraPrompt(p gencanvas.CameraParams) string {
	var parts []string

	if p.Rotation != 0 {
		degrees := int(p.Rotation)
		if degrees < 0 {
			degrees = -degrees
		}
		if p.Rotation > 0 {
			parts = append(parts, fmt.Sprintf(cameraTemplates["rotate_right"], degrees, degrees))
		} else {
			parts = append(parts, fmt.Sprintf(cameraTemplates["rotate_left"], degrees, degrees))
		}
	}

	switch {
	case p.Tilt > 5:
		parts = append(parts, cameraTemplates["birds_eye"])
	case p.Tilt < -5:
		parts = append(parts, cameraTemplates["worms_eye"])
	}

	if p.Zoom > 5 {
		parts = append(parts, cameraTemplates["close_up"])
	}

	if p.WideAngle {
		parts = append(parts, cameraTemplates["wide_angle"])
	}

	if len(parts) == 0 {
		return cameraTemplates["no_movement"]
	}
	return strings.Join(parts, " ")
}
