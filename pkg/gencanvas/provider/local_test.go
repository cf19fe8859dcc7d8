package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// TestLocal_BuildArgs tests the inference command line: required flags
// always present, zero-valued params omitted for architecture defaults.
func TestLocal_BuildArgs(t *testing.T) {
	l := NewLocal("/opt/scripts/inference.py")

	req := gencanvas.Request{
		NodeID: "n1",
		Prompt: "a misty forest",
		Params: gencanvas.GenerationParams{
			ModelPath:      "/models/dreamshaper_xl.safetensors",
			NegativePrompt: "blurry",
			Resolution:     "1024x768",
			Steps:          30,
			GuidanceScale:  7.5,
			Seed:           1234,
			Architecture:   "sdxl",
		},
	}

	args := l.buildArgs(req, "/tmp/out.png")
	assert.Equal(t, []string{
		"/opt/scripts/inference.py",
		"--model_path", "/models/dreamshaper_xl.safetensors",
		"--prompt", "a misty forest",
		"--output", "/tmp/out.png",
		"--negative_prompt", "blurry",
		"--width", "1024", "--height", "768",
		"--steps", "30",
		"--guidance_scale", "7.5",
		"--seed", "1234",
		"--architecture", "sdxl",
	}, args)
}

// TestLocal_BuildArgs_Minimal tests that optional flags are dropped.
func TestLocal_BuildArgs_Minimal(t *testing.T) {
	l := NewLocal("inference.py")
	req := gencanvas.Request{
		Prompt: "p",
		Params: gencanvas.GenerationParams{ModelPath: "/m.ckpt"},
	}

	args := l.buildArgs(req, "/tmp/out.png")
	assert.Equal(t, []string{
		"inference.py",
		"--model_path", "/m.ckpt",
		"--prompt", "p",
		"--output", "/tmp/out.png",
	}, args)
}

// TestLocal_Generate_RequiresModelPath tests dispatching without a
// selected checkpoint.
func TestLocal_Generate_RequiresModelPath(t *testing.T) {
	l := NewLocal("inference.py")
	_, err := l.Generate(context.Background(), gencanvas.Request{Prompt: "p"})
	assert.ErrorContains(t, err, "no model selected")
}

// TestParseResolution tests WxH parsing.
func TestParseResolution(t *testing.T) {
	tests := []struct {
		in    string
		w, h  int
		valid bool
	}{
		{"1024x768", 1024, 768, true},
		{"512X512", 512, 512, true},
		{" 640 x 480 ", 640, 480, true},
		{"", 0, 0, false},
		{"1024", 0, 0, false},
		{"ax b", 0, 0, false},
		{"0x512", 0, 0, false},
		{"-1x512", 0, 0, false},
	}

	for _, tt := range tests {
		w, h, ok := parseResolution(tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
		if tt.valid {
			assert.Equal(t, tt.w, w, tt.in)
			assert.Equal(t, tt.h, h, tt.in)
		}
	}
}

// TestLastLine tests stderr tail extraction.
func TestLastLine(t *testing.T) {
	assert.Equal(t, "ValueError: bad model", lastLine("Traceback ...\n  foo\nValueError: bad model\n"))
	assert.Equal(t, "single", lastLine("single"))
	assert.Equal(t, "", lastLine("  \n \n"))
}
