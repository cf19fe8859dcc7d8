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

// Gemini defaults.
const (
	DefaultGeminiModel   = "gemini-2.5-flash-image"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiTimeout = 2 * time.Minute
)

// Gemini generates still images through the Gemini generateContent API.
// It is synchronous: the call blocks until the API returns inline image
// bytes, which are handed back as a data URI.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

var _ gencanvas.Provider = (*Gemini)(nil)

// GeminiOption configures a Gemini adapter.
type GeminiOption func(*Gemini)

// WithGeminiModel overrides the model id. Default: DefaultGeminiModel.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiBaseURL overrides the API base URL, e.g. for a proxy.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *Gemini) {
		if url != "" {
			g.baseURL = url
		}
	}
}

// WithGeminiHTTPClient sets the HTTP client used for API calls.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) {
		if c != nil {
			g.client = c
		}
	}
}

// NewGemini creates a Gemini image adapter.
func NewGemini(apiKey string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:  apiKey,
		model:   DefaultGeminiModel,
		baseURL: DefaultGeminiBaseURL,
		client:  &http.Client{Timeout: DefaultGeminiTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode implements gencanvas.Provider.
func (g *Gemini) Mode() gencanvas.Mode { return gencanvas.ModeSync }

// Request/response shapes, trimmed to the fields this adapter uses.
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate implements gencanvas.Provider. Parent images are inlined
// ahead of the prompt so the model treats them as editing context.
func (g *Gemini) Generate(ctx context.Context, req gencanvas.Request) (*gencanvas.Result, error) {
	parts := make([]geminiPart, 0, len(req.Inputs)+1)
	for _, in := range req.Inputs {
		data, err := resolveInput(ctx, g.client, in)
		if err != nil {
			return nil, fmt.Errorf("gemini: resolve input: %w", err)
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{MIMEType: data.MIMEType, Data: data.Base64},
		})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	body := geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if req.Params.AspectRatio != "" {
		body.GenerationConfig.ImageConfig = &geminiImageConfig{AspectRatio: req.Params.AspectRatio}
	}

	model := g.model
	if req.Params.Model != "" {
		model = req.Params.Model
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini: %s", readErrorBody(resp))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}

	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				d := inlineData{MIMEType: part.InlineData.MIMEType, Base64: part.InlineData.Data}
				if d.MIMEType == "" {
					d.MIMEType = "image/png"
				}
				return &gencanvas.Result{URL: d.dataURI(), Kind: gencanvas.KindImage}, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini: response contained no image data")
}
