package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploads stores raw artifact bytes on disk and hands back the public
// path the HTTP layer serves them under.
type Uploads struct {
	dir        string
	publicBase string
}

// NewUploads creates an upload store writing under dir. publicBase is
// the URL prefix the files are served from, e.g. "/files".
func NewUploads(dir, publicBase string) (*Uploads, error) {
	if dir == "" {
		return nil, errors.New("assets: upload directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Uploads{
		dir:        dir,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}, nil
}

// Dir returns the directory uploads are written to.
func (u *Uploads) Dir() string { return u.dir }

// Store writes data under a fresh name with the extension implied by
// the MIME type and returns the public URL path.
func (u *Uploads) Store(data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("assets: empty upload")
	}

	name := uuid.New().String() + extensionFor(mimeType)
	path := filepath.Join(u.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return u.publicBase + "/" + name, nil
}

// Remove deletes a stored file given its public URL path. Unknown
// files are not an error.
func (u *Uploads) Remove(publicURL string) error {
	name := filepath.Base(publicURL)
	if name == "." || name == "/" || name == "" {
		return errors.New("assets: malformed file reference")
	}
	err := os.Remove(filepath.Join(u.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// extensionFor maps common artifact MIME types to file extensions.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
