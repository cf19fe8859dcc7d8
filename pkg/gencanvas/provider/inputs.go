package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxInputBytes bounds how much of a remote input artifact an adapter
// will buffer before inlining it into a request.
const maxInputBytes = 64 << 20 // 64 MiB

// inlineData is an input artifact decoded for inlining into a provider
// request body.
type inlineData struct {
	MIMEType string
	Base64   string
}

// resolveInput turns a parent artifact reference (data URI or http(s)
// URL) into inline base64 data. Remote URLs are fetched with the given
// client.
func resolveInput(ctx context.Context, client *http.Client, ref string) (inlineData, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return parseDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fetchInput(ctx, client, ref)
	default:
		return inlineData{}, fmt.Errorf("unsupported input reference %q", truncate(ref, 48))
	}
}

// parseDataURI splits a base64 data URI into its MIME type and payload.
func parseDataURI(uri string) (inlineData, error) {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return inlineData{}, errors.New("malformed data URI")
	}
	header := uri[len("data:"):idx]
	mime := strings.TrimSuffix(header, ";base64")
	if mime == "" {
		mime = "application/octet-stream"
	}
	payload := uri[idx+1:]
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return inlineData{}, fmt.Errorf("decode data URI: %w", err)
	}
	return inlineData{MIMEType: mime, Base64: payload}, nil
}

// fetchInput downloads a remote artifact and returns it inline.
func fetchInput(ctx context.Context, client *http.Client, url string) (inlineData, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return inlineData{}, fmt.Errorf("build input request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return inlineData{}, fmt.Errorf("fetch input: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return inlineData{}, fmt.Errorf("fetch input: %s returned %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInputBytes+1))
	if err != nil {
		return inlineData{}, fmt.Errorf("read input body: %w", err)
	}
	if len(data) > maxInputBytes {
		return inlineData{}, fmt.Errorf("input at %s exceeds %d bytes", url, maxInputBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}

	return inlineData{
		MIMEType: mime,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

// dataURI re-encodes inline data as a data URI.
func (d inlineData) dataURI() string {
	return "data:" + d.MIMEType + ";base64," + d.Base64
}

// truncate shortens a string for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// readErrorBody extracts a useful message from a non-2xx API response.
// It prefers the conventional {"error":{"message":...}} shape and falls
// back to the raw body.
func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(body))
	if m := extractErrorMessage(msg); m != "" {
		return m
	}
	if msg == "" {
		return resp.Status
	}
	return msg
}

// extractErrorMessage pulls error.message (or detail/message) out of a
// JSON error body without committing to one backend's exact schema.
func extractErrorMessage(body string) string {
	for _, key := range []string{`"message":"`, `"detail":"`} {
		if i := strings.Index(body, key); i >= 0 {
			rest := body[i+len(key):]
			if j := strings.Index(rest, `"`); j >= 0 {
				return rest[:j]
			}
		}
	}
	return ""
}
