// Package frames derives still images from generated video artifacts.
//
// The canvas chains video nodes by feeding a clip's final frame into the
// next generation as an input image. Extraction is always best-effort:
// callers treat any error here as non-fatal and leave the node's result
// intact without a frame.
package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds one extraction, including remote fetch and decode.
const DefaultTimeout = 30 * time.Second

// FFmpeg extracts a video's final frame by shelling out to the ffmpeg
// binary. It accepts remote URLs (ffmpeg fetches them directly) and
// data URIs (decoded to a temp file first).
type FFmpeg struct {
	path    string
	timeout time.Duration
	tempDir string
}

// Option configures an FFmpeg extractor.
type Option func(*FFmpeg)

// WithPath sets the path to the ffmpeg binary.
// Default: "ffmpeg" resolved from PATH.
func WithPath(path string) Option {
	return func(f *FFmpeg) { f.path = path }
}

// WithTimeout sets the per-extraction timeout. Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithTempDir sets the directory for intermediate files.
// Default: the OS temp directory.
func WithTempDir(dir string) Option {
	return func(f *FFmpeg) { f.tempDir = dir }
}

// NewFFmpeg creates a new ffmpeg-backed extractor.
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		path:    "ffmpeg",
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LastFrame decodes the final frame of the video at videoURL and returns
// it as a base64 JPEG data URI.
//
// Failure modes - unreachable resource, zero-duration or corrupt video,
// timeout - are returned as errors and never panic; the caller decides
// whether the missing frame matters.
func (f *FFmpeg) LastFrame(ctx context.Context, videoURL string) (string, error) {
	if videoURL == "" {
		return "", errors.New("frames: empty video reference")
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	input := videoURL
	if strings.HasPrefix(videoURL, "data:") {
		tmp, err := f.materializeDataURI(videoURL)
		if err != nil {
			return "", err
		}
		defer os.Remove(tmp)
		input = tmp
	}

	out, err := os.CreateTemp(f.tempDir, "gencanvas-frame-*.jpg")
	if err != nil {
		return "", fmt.Errorf("frames: create output file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	// -sseof -1 seeks one second before end of input, then the last
	// decoded frame wins via -update.
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-sseof", "-1",
		"-i", input,
		"-frames:v", "1",
		"-update", "1",
		"-q:v", "2",
		"-y", outPath,
	}

	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("frames: extraction timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("frames: ffmpeg failed: %s", msg)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("frames: read extracted frame: %w", err)
	}
	if len(data) == 0 {
		// ffmpeg exits zero on some zero-duration inputs without
		// writing a frame.
		return "", errors.New("frames: no frame decoded")
	}

	return JPEGDataURI(data), nil
}

// materializeDataURI writes the payload of a base64 data URI to a temp
// file and returns its path.
func (f *FFmpeg) materializeDataURI(uri string) (string, error) {
	payload, err := DecodeDataURI(uri)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(f.tempDir, "gencanvas-video-*.mp4")
	if err != nil {
		return "", fmt.Errorf("frames: create temp video: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("frames: write temp video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("frames: close temp video: %w", err)
	}
	return tmp.Name(), nil
}

// DecodeDataURI returns the decoded payload of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, ",")
	if idx < 0 || !strings.HasPrefix(uri, "data:") {
		return nil, errors.New("frames: malformed data URI")
	}
	payload, err := base64.StdEncoding.DecodeString(uri[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("frames: decode data URI: %w", err)
	}
	return payload, nil
}

// JPEGDataURI encodes raw JPEG bytes as a base64 data URI.
func JPEGDataURI(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}
