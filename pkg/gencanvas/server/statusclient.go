package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// StatusClient checks generation status against a remote canvas
// instance over HTTP. It lets a recovery monitor run in a different
// process than the one holding the in-memory job tracker.
type StatusClient struct {
	baseURL string
	client  *http.Client
}

var _ gencanvas.StatusChecker = (*StatusClient)(nil)

// NewStatusClient creates a checker against the API at baseURL,
// e.g. "http://localhost:8787".
func NewStatusClient(baseURL string, client *http.Client) *StatusClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &StatusClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// Check implements gencanvas.StatusChecker.
func (c *StatusClient) Check(ctx context.Context, nodeID string) (gencanvas.StatusCheck, error) {
	url := fmt.Sprintf("%s/api/generations/%s/status", c.baseURL, nodeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gencanvas.StatusCheck{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return gencanvas.StatusCheck{}, fmt.Errorf("status check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gencanvas.StatusCheck{}, fmt.Errorf("status check for %s: %s", nodeID, resp.Status)
	}

	var res gencanvas.StatusCheck
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return gencanvas.StatusCheck{}, fmt.Errorf("decode status response: %w", err)
	}
	return res, nil
}
