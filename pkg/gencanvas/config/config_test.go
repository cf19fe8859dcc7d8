package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gencanvas/gencanvas/pkg/gencanvas/config"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"with values", map[string]any{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.NotNil(t, cfg.Raw())
		})
	}
}

// TestString verifies string extraction with defaults.
func TestString(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal string
		want       string
	}{
		{"key exists", map[string]any{"model": "veo-3.0"}, "model", "default", "veo-3.0"},
		{"key missing", map[string]any{"other": "value"}, "model", "default", "default"},
		{"empty string", map[string]any{"model": ""}, "model", "default", ""},
		{"wrong type int", map[string]any{"model": 123}, "model", "default", "default"},
		{"wrong type bool", map[string]any{"model": true}, "model", "default", "default"},
		{"nil map", nil, "model", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, tt.want, cfg.String(tt.key, tt.defaultVal))
		})
	}
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"string duration", map[string]any{"interval": "30s"}, "interval", 10 * time.Second, 30 * time.Second},
		{"string complex duration", map[string]any{"interval": "1h30m"}, "interval", 10 * time.Second, 90 * time.Minute},
		{"int seconds", map[string]any{"interval": 60}, "interval", 10 * time.Second, 60 * time.Second},
		{"int64 seconds", map[string]any{"interval": int64(45)}, "interval", 10 * time.Second, 45 * time.Second},
		{"float64 seconds", map[string]any{"interval": 30.5}, "interval", 10 * time.Second, 30500 * time.Millisecond},
		{"time.Duration passthrough", map[string]any{"interval": 5 * time.Minute}, "interval", 10 * time.Second, 5 * time.Minute},
		{"invalid string", map[string]any{"interval": "not-a-duration"}, "interval", 10 * time.Second, 10 * time.Second},
		{"key missing", map[string]any{}, "interval", 10 * time.Second, 10 * time.Second},
		{"wrong type bool", map[string]any{"interval": true}, "interval", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, tt.want, cfg.Duration(tt.key, tt.defaultVal))
		})
	}
}

// TestBool verifies boolean extraction.
func TestBool(t *testing.T) {
	cfg := config.New(map[string]any{
		"enabled":  true,
		"disabled": false,
		"notabool": "yes",
	})

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("disabled", true))
	assert.True(t, cfg.Bool("notabool", true))
	assert.False(t, cfg.Bool("missing", false))
}

// TestInt verifies integer extraction and float coercion rules.
func TestInt(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal int
		want       int
	}{
		{"int value", map[string]any{"steps": 4}, "steps", 20, 4},
		{"float64 whole", map[string]any{"steps": 8.0}, "steps", 20, 8},
		{"float64 fractional rejected", map[string]any{"steps": 8.5}, "steps", 20, 20},
		{"key missing", map[string]any{}, "steps", 20, 20},
		{"wrong type string", map[string]any{"steps": "4"}, "steps", 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, tt.want, cfg.Int(tt.key, tt.defaultVal))
		})
	}
}

// TestFloat verifies float extraction with int conversion.
func TestFloat(t *testing.T) {
	cfg := config.New(map[string]any{
		"guidance": 7.5,
		"whole":    3,
		"big":      int64(9),
		"bad":      "x",
	})

	assert.Equal(t, 7.5, cfg.Float("guidance", 1.0))
	assert.Equal(t, 3.0, cfg.Float("whole", 1.0))
	assert.Equal(t, 9.0, cfg.Float("big", 1.0))
	assert.Equal(t, 1.0, cfg.Float("bad", 1.0))
	assert.Equal(t, 1.0, cfg.Float("missing", 1.0))
}

// TestStringSlice verifies slice extraction from both decoded forms.
func TestStringSlice(t *testing.T) {
	cfg := config.New(map[string]any{
		"typed":   []string{"a", "b"},
		"decoded": []any{"x", "y"},
		"mixed":   []any{"x", 1},
		"scalar":  "x",
	})

	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("typed", nil))
	assert.Equal(t, []string{"x", "y"}, cfg.StringSlice("decoded", nil))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("mixed", []string{"d"}))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("scalar", []string{"d"}))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("missing", []string{"d"}))
}

// TestSub verifies nested section access.
func TestSub(t *testing.T) {
	cfg := config.New(map[string]any{
		"monitor": map[string]any{
			"interval": "10s",
			"max_wait": "10m",
		},
		"scalar": 42,
	})

	sub := cfg.Sub("monitor")
	assert.Equal(t, 10*time.Second, sub.Duration("interval", time.Minute))
	assert.Equal(t, 10*time.Minute, sub.Duration("max_wait", time.Minute))

	// Missing and non-map keys yield empty sections with defaults intact.
	assert.Equal(t, "fallback", cfg.Sub("missing").String("x", "fallback"))
	assert.Equal(t, "fallback", cfg.Sub("scalar").String("x", "fallback"))
}

// TestHasAndAny verifies key presence and raw access.
func TestHasAndAny(t *testing.T) {
	cfg := config.New(map[string]any{"key": "value"})
	assert.True(t, cfg.Has("key"))
	assert.False(t, cfg.Has("missing"))
	assert.Equal(t, "value", cfg.Any("key", nil))
	assert.Equal(t, "fallback", cfg.Any("missing", "fallback"))
}

// TestFromYAML verifies YAML parsing.
func TestFromYAML(t *testing.T) {
	data := []byte(`
monitor:
  interval: 10s
gemini:
  api_key: test-key
data_dir: ./data
`)
	cfg, err := config.FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Sub("monitor").Duration("interval", time.Minute))
	assert.Equal(t, "test-key", cfg.Sub("gemini").String("api_key", ""))
	assert.Equal(t, "./data", cfg.String("data_dir", ""))
}

// TestFromYAML_Invalid verifies YAML error handling.
func TestFromYAML_Invalid(t *testing.T) {
	_, err := config.FromYAML([]byte("{{not yaml"))
	assert.Error(t, err)
}

// TestFromJSON verifies JSON parsing.
func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"server": {"addr": ":8787"}}`))
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.Sub("server").String("addr", ""))
}

// TestFromFile verifies extension-based loading.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("data_dir: /tmp/canvas"), 0o644))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/canvas", cfg.String("data_dir", ""))

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "cfg.toml")
	require.NoError(t, os.WriteFile(badPath, []byte(""), 0o644))
	_, err = config.FromFile(badPath)
	assert.ErrorContains(t, err, "unsupported config file extension")
}
