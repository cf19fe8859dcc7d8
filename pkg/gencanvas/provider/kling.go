package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// Kling defaults.
const (
	DefaultKlingModel        = "fal-ai/kling-video/v2.1/standard/image-to-video"
	DefaultKlingBaseURL      = "https://queue.fal.run"
	DefaultKlingPollInterval = 10 * time.Second
	DefaultKlingMaxWait      = 10 * time.Minute
	DefaultKlingDuration     = "5"
)

// Kling generates image-to-video clips through the Fal.ai queue API.
// Submission returns a request id plus status and response URLs; a
// background watcher follows those until the job settles and records
// the outcome in the tracker under the node id.
type Kling struct {
	apiKey       string
	model        string
	baseURL      string
	client       *http.Client
	tracker      *Tracker
	pollInterval time.Duration
	maxWait      time.Duration
}

var _ gencanvas.Provider = (*Kling)(nil)

// KlingOption configures a Kling adapter.
type KlingOption func(*Kling)

// WithKlingModel overrides the Fal model path. Default: DefaultKlingModel.
func WithKlingModel(model string) KlingOption {
	return func(k *Kling) {
		if model != "" {
			k.model = model
		}
	}
}

// WithKlingBaseURL overrides the queue base URL.
func WithKlingBaseURL(url string) KlingOption {
	return func(k *Kling) {
		if url != "" {
			k.baseURL = url
		}
	}
}

// WithKlingHTTPClient sets the HTTP client used for API calls.
func WithKlingHTTPClient(c *http.Client) KlingOption {
	return func(k *Kling) {
		if c != nil {
			k.client = c
		}
	}
}

// WithKlingPollInterval sets how often the watcher polls the queue.
func WithKlingPollInterval(d time.Duration) KlingOption {
	return func(k *Kling) {
		if d > 0 {
			k.pollInterval = d
		}
	}
}

// WithKlingMaxWait bounds how long the watcher waits for the job.
func WithKlingMaxWait(d time.Duration) KlingOption {
	return func(k *Kling) {
		if d > 0 {
			k.maxWait = d
		}
	}
}

// NewKling creates a Kling video adapter. Panics on a nil tracker.
func NewKling(apiKey string, tracker *Tracker, opts ...KlingOption) *Kling {
	if tracker == nil {
		panic("provider: kling tracker cannot be nil")
	}
	k := &Kling{
		apiKey:       apiKey,
		model:        DefaultKlingModel,
		baseURL:      DefaultKlingBaseURL,
		client:       &http.Client{Timeout: 60 * time.Second},
		tracker:      tracker,
		pollInterval: DefaultKlingPollInterval,
		maxWait:      DefaultKlingMaxWait,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Mode implements gencanvas.Provider.
func (k *Kling) Mode() gencanvas.Mode { return gencanvas.ModeAsync }

type klingSubmitRequest struct {
	Prompt         string `json:"prompt"`
	ImageURL       string `json:"image_url"`
	Duration       string `json:"duration"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type klingQueueStatus struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type klingResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	Detail string `json:"detail,omitempty"`
}

// Generate implements gencanvas.Provider. Kling is image-to-video: the
// first resolved input is required as the conditioning frame.
func (k *Kling) Generate(ctx context.Context, req gencanvas.Request) (*gencanvas.Result, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("kling: an input image is required")
	}

	// Any verdict still recorded for this node belongs to a previous job
	// and must not be readable while the new submission is in flight.
	k.tracker.Clear(req.NodeID)

	body := klingSubmitRequest{
		Prompt:         req.Prompt,
		ImageURL:       req.Inputs[0],
		Duration:       DefaultKlingDuration,
		AspectRatio:    req.Params.AspectRatio,
		NegativePrompt: req.Params.NegativePrompt,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kling: encode request: %w", err)
	}

	model := k.model
	if req.Params.Model != "" {
		model = req.Params.Model
	}

	url := fmt.Sprintf("%s/%s", k.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("kling: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+k.apiKey)

	resp, err := k.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kling: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kling: %s", readErrorBody(resp))
	}

	var queued klingQueueStatus
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		return nil, fmt.Errorf("kling: decode response: %w", err)
	}
	if queued.StatusURL == "" || queued.ResponseURL == "" {
		return nil, fmt.Errorf("kling: submit returned no queue URLs")
	}

	go k.watch(req.NodeID, queued)
	return nil, nil
}

// watch follows the queued job until COMPLETED or a terminal error and
// records the outcome in the tracker.
func (k *Kling) watch(nodeID string, queued klingQueueStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), k.maxWait)
	defer cancel()

	ticker := time.NewTicker(k.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.tracker.Fail(nodeID, "video generation timed out in queue "+queued.RequestID)
			return
		case <-ticker.C:
			status, err := k.getJSON(ctx, queued.StatusURL)
			if err != nil {
				continue
			}
			var st klingQueueStatus
			if err := json.Unmarshal(status, &st); err != nil {
				continue
			}
			switch st.Status {
			case "COMPLETED":
				k.fetchResult(ctx, nodeID, queued.ResponseURL)
				return
			case "IN_QUEUE", "IN_PROGRESS":
				// keep polling
			default:
				k.tracker.Fail(nodeID, "video generation failed with queue status "+st.Status)
				return
			}
		}
	}
}

// fetchResult retrieves the completed job's output and records it.
func (k *Kling) fetchResult(ctx context.Context, nodeID, responseURL string) {
	body, err := k.getJSON(ctx, responseURL)
	if err != nil {
		k.tracker.Fail(nodeID, "video generation completed but result fetch failed: "+err.Error())
		return
	}
	var out klingResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Video.URL == "" {
		msg := out.Detail
		if msg == "" {
			msg = "video generation completed without output"
		}
		k.tracker.Fail(nodeID, msg)
		return
	}
	k.tracker.Complete(nodeID, out.Video.URL, gencanvas.KindVideo)
}

func (k *Kling) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+k.apiKey)

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %s", url, readErrorBody(resp))
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
