/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that
handle missing keys and type mismatches gracefully by returning default
values. This is useful for extracting configuration values from YAML/JSON
structures without verbose type assertions and nil checks.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "interval": "10s",
	    "steps":    4,
	    "enabled":  true,
	})

	interval := cfg.Duration("interval", 30*time.Second) // 10s
	steps := cfg.Int("steps", 20)                        // 4
	enabled := cfg.Bool("enabled", false)                // true
	missing := cfg.String("missing", "default")          // "default"

Nested sections are reached with Sub, which yields an empty Config for
missing keys so accessor defaults still apply:

	addr := cfg.Sub("server").String("addr", ":8787")

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

Numeric types handle reasonable conversions:
  - int from float64 (only without a fractional part)
  - float64 from int

# File Loading

Load configuration from YAML or JSON files:

	cfg, err := config.FromFile("gencanvas.yaml")
	if err != nil {
	    log.Fatal(err)
	}

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation. However, if the original map is modified
externally, behavior is undefined.
*/
package config
