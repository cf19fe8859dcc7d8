// Package localmodels discovers diffusion checkpoints on the local
// filesystem for the local-image provider's model picker.
package localmodels

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a scan result is served before the directory
// is walked again.
const DefaultTTL = 30 * time.Second

// Model is one discovered checkpoint file.
type Model struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Architecture string `json:"architecture"`
	SizeBytes    int64  `json:"sizeBytes"`
}

// Scanner walks a models directory for checkpoint files and caches the
// result for a TTL, since the picker polls more often than models
// change.
type Scanner struct {
	dir string
	ttl time.Duration

	mu      sync.Mutex
	cached  []Model
	expires time.Time
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithTTL sets the cache lifetime. Default: DefaultTTL.
func WithTTL(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewScanner creates a scanner over the given models directory.
func NewScanner(dir string, opts ...ScannerOption) *Scanner {
	s := &Scanner{dir: dir, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Models returns the discovered checkpoints, rescanning when the cache
// has expired. A missing directory yields an empty list, not an error.
func (s *Scanner) Models() ([]Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Before(s.expires) {
		return append([]Model(nil), s.cached...), nil
	}

	models, err := s.scan()
	if err != nil {
		return nil, err
	}
	s.cached = models
	s.expires = time.Now().Add(s.ttl)
	return append([]Model(nil), models...), nil
}

// Invalidate drops the cache so the next Models call rescans.
func (s *Scanner) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires = time.Time{}
}

func (s *Scanner) scan() ([]Model, error) {
	var models []Model
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".safetensors" && ext != ".ckpt" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		models = append(models, Model{
			Name:         name,
			Path:         path,
			Architecture: guessArchitecture(name),
			SizeBytes:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localmodels: scan %s: %w", s.dir, err)
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// guessArchitecture infers the pipeline family from a checkpoint's
// filename. The inference script re-detects from tensor shapes, so a
// wrong guess only costs a slower first run.
func guessArchitecture(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "flux"):
		return "flux"
	case strings.Contains(lower, "animatediff"):
		return "animatediff"
	case strings.Contains(lower, "xl"):
		return "sdxl"
	default:
		return "sd15"
	}
}
