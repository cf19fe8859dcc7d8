package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// Veo defaults.
const (
	DefaultVeoModel        = "veo-3.0-generate-001"
	DefaultVeoBaseURL      = "https://generativelanguage.googleapis.com"
	DefaultVeoPollInterval = 10 * time.Second
	DefaultVeoMaxWait      = 10 * time.Minute
)

// Veo generates video through the predictLongRunning API. It is
// asynchronous: Generate submits the job and returns once the API
// acknowledges the operation; a background watcher polls the operation
// and records the terminal outcome in the tracker under the node id.
type Veo struct {
	apiKey       string
	model        string
	baseURL      string
	client       *http.Client
	tracker      *Tracker
	pollInterval time.Duration
	maxWait      time.Duration
}

var _ gencanvas.Provider = (*Veo)(nil)

// VeoOption configures a Veo adapter.
type VeoOption func(*Veo)

// WithVeoModel overrides the model id. Default: DefaultVeoModel.
func WithVeoModel(model string) VeoOption {
	return func(v *Veo) {
		if model != "" {
			v.model = model
		}
	}
}

// WithVeoBaseURL overrides the API base URL.
func WithVeoBaseURL(url string) VeoOption {
	return func(v *Veo) {
		if url != "" {
			v.baseURL = url
		}
	}
}

// WithVeoHTTPClient sets the HTTP client used for API calls.
func WithVeoHTTPClient(c *http.Client) VeoOption {
	return func(v *Veo) {
		if c != nil {
			v.client = c
		}
	}
}

// WithVeoPollInterval sets how often the watcher polls the operation.
func WithVeoPollInterval(d time.Duration) VeoOption {
	return func(v *Veo) {
		if d > 0 {
			v.pollInterval = d
		}
	}
}

// WithVeoMaxWait bounds how long the watcher waits for the operation
// before recording a failure.
func WithVeoMaxWait(d time.Duration) VeoOption {
	return func(v *Veo) {
		if d > 0 {
			v.maxWait = d
		}
	}
}

// NewVeo creates a Veo video adapter. Panics on a nil tracker, since an
// async adapter without one can never complete a job.
func NewVeo(apiKey string, tracker *Tracker, opts ...VeoOption) *Veo {
	if tracker == nil {
		panic("provider: veo tracker cannot be nil")
	}
	v := &Veo{
		apiKey:       apiKey,
		model:        DefaultVeoModel,
		baseURL:      DefaultVeoBaseURL,
		client:       &http.Client{Timeout: 60 * time.Second},
		tracker:      tracker,
		pollInterval: DefaultVeoPollInterval,
		maxWait:      DefaultVeoMaxWait,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mode implements gencanvas.Provider.
func (v *Veo) Mode() gencanvas.Mode { return gencanvas.ModeAsync }

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type veoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type veoSubmitRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// Generate implements gencanvas.Provider. The first input, when
// present, seeds the video as an image-to-video conditioning frame.
func (v *Veo) Generate(ctx context.Context, req gencanvas.Request) (*gencanvas.Result, error) {
	// Any verdict still recorded for this node belongs to a previous job
	// and must not be readable while the new submission is in flight.
	v.tracker.Clear(req.NodeID)

	inst := veoInstance{Prompt: req.Prompt}
	if len(req.Inputs) > 0 {
		data, err := resolveInput(ctx, v.client, req.Inputs[0])
		if err != nil {
			return nil, fmt.Errorf("veo: resolve input: %w", err)
		}
		inst.Image = &veoImage{BytesBase64Encoded: data.Base64, MIMEType: data.MIMEType}
	}

	model := v.model
	if req.Params.Model != "" {
		model = req.Params.Model
	}

	body := veoSubmitRequest{
		Instances:  []veoInstance{inst},
		Parameters: veoParameters{AspectRatio: req.Params.AspectRatio},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("veo: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", v.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("veo: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", v.apiKey)

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("veo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("veo: %s", readErrorBody(resp))
	}

	var op veoOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("veo: decode response: %w", err)
	}
	if op.Name == "" {
		return nil, fmt.Errorf("veo: submit returned no operation name")
	}

	// The watcher deliberately outlives the dispatch context: the job
	// keeps running on the backend regardless of who is still waiting.
	go v.watch(req.NodeID, op.Name)
	return nil, nil
}

// watch polls the long-running operation until it settles and records
// the outcome in the tracker.
func (v *Veo) watch(nodeID, opName string) {
	ctx, cancel := context.WithTimeout(context.Background(), v.maxWait)
	defer cancel()

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v.tracker.Fail(nodeID, "video generation timed out waiting for operation "+opName)
			return
		case <-ticker.C:
			op, err := v.pollOperation(ctx, opName)
			if err != nil {
				// Transient poll failures are retried until maxWait.
				continue
			}
			if !op.Done {
				continue
			}
			if op.Error != nil {
				msg := op.Error.Message
				if msg == "" {
					msg = "video generation failed"
				}
				v.tracker.Fail(nodeID, msg)
				return
			}
			samples := op.Response.GenerateVideoResponse.GeneratedSamples
			if len(samples) == 0 || samples[0].Video.URI == "" {
				v.tracker.Fail(nodeID, "video generation finished without output")
				return
			}
			v.tracker.Complete(nodeID, samples[0].Video.URI, gencanvas.KindVideo)
			return
		}
	}
}

func (v *Veo) pollOperation(ctx context.Context, opName string) (*veoOperation, error) {
	url := fmt.Sprintf("%s/v1beta/%s", v.baseURL, opName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("veo: poll %s: %s", opName, readErrorBody(resp))
	}

	var op veoOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, err
	}
	return &op, nil
}
