package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// Local inference defaults.
const (
	DefaultLocalPython  = "python3"
	DefaultLocalTimeout = 5 * time.Minute
)

// Local generates images with a local diffusion pipeline by shelling
// out to an inference script. It is synchronous and slow; the default
// timeout is generous because model load dominates cold runs.
type Local struct {
	python    string
	script    string
	outputDir string
	timeout   time.Duration
}

var _ gencanvas.Provider = (*Local)(nil)

// LocalOption configures a Local adapter.
type LocalOption func(*Local)

// WithLocalPython sets the python interpreter. Default: "python3".
func WithLocalPython(path string) LocalOption {
	return func(l *Local) {
		if path != "" {
			l.python = path
		}
	}
}

// WithLocalOutputDir sets where generated images are written before
// being inlined. Default: the OS temp directory.
func WithLocalOutputDir(dir string) LocalOption {
	return func(l *Local) {
		if dir != "" {
			l.outputDir = dir
		}
	}
}

// WithLocalTimeout bounds one inference run. Default: DefaultLocalTimeout.
func WithLocalTimeout(d time.Duration) LocalOption {
	return func(l *Local) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// NewLocal creates a local inference adapter running the given script.
func NewLocal(script string, opts ...LocalOption) *Local {
	l := &Local{
		python:    DefaultLocalPython,
		script:    script,
		outputDir: os.TempDir(),
		timeout:   DefaultLocalTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Mode implements gencanvas.Provider.
func (l *Local) Mode() gencanvas.Mode { return gencanvas.ModeSync }

// Generate implements gencanvas.Provider. The node's params must carry
// the checkpoint path; everything else falls back to the script's
// per-architecture defaults.
func (l *Local) Generate(ctx context.Context, req gencanvas.Request) (*gencanvas.Result, error) {
	if req.Params.ModelPath == "" {
		return nil, errors.New("local: no model selected")
	}

	outPath := filepath.Join(l.outputDir, fmt.Sprintf("gencanvas-local-%s-%d.png", req.NodeID, time.Now().UnixNano()))
	defer os.Remove(outPath)

	args := l.buildArgs(req, outPath)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, l.python, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("local: inference timed out after %s", l.timeout)
		}
		msg := lastLine(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("local: inference failed: %s", msg)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("local: read output image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("local: inference produced an empty image")
	}

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	return &gencanvas.Result{URL: uri, Kind: gencanvas.KindImage}, nil
}

// buildArgs assembles the inference script's command line. Zero-valued
// params are omitted so the script applies its architecture defaults.
func (l *Local) buildArgs(req gencanvas.Request, outPath string) []string {
	args := []string{
		l.script,
		"--model_path", req.Params.ModelPath,
		"--prompt", req.Prompt,
		"--output", outPath,
	}
	if req.Params.NegativePrompt != "" {
		args = append(args, "--negative_prompt", req.Params.NegativePrompt)
	}
	if w, h, ok := parseResolution(req.Params.Resolution); ok {
		args = append(args, "--width", strconv.Itoa(w), "--height", strconv.Itoa(h))
	}
	if req.Params.Steps > 0 {
		args = append(args, "--steps", strconv.Itoa(req.Params.Steps))
	}
	if req.Params.GuidanceScale > 0 {
		args = append(args, "--guidance_scale", strconv.FormatFloat(req.Params.GuidanceScale, 'f', -1, 64))
	}
	if req.Params.Seed != 0 {
		args = append(args, "--seed", strconv.FormatInt(req.Params.Seed, 10))
	}
	if req.Params.Architecture != "" {
		args = append(args, "--architecture", req.Params.Architecture)
	}
	return args
}

// parseResolution splits a "WxH" string into dimensions.
func parseResolution(s string) (w, h int, ok bool) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// lastLine returns the final non-empty line of subprocess stderr, which
// for python tracebacks is the actual error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
