// Package assets stores the 3D model files attached to persona profiles.
package assets

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the public path under which assets are served.
const URLPrefix = "/models/"

// DefaultMaxBytes bounds an upload when no limit is configured.
const DefaultMaxBytes int64 = 100 << 20

var (
	ErrUnsupportedType = errors.New("assets: unsupported file type")
	ErrTooLarge        = errors.New("assets: file too large")
	ErrInvalidName     = errors.New("assets: invalid file name")
	ErrNotFound        = errors.New("assets: file not found")
)

var contentTypes = map[string]string{
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
	".fbx":  "application/octet-stream",
}

// Asset describes a stored file.
type Asset struct {
	Filename string `json:"filename"`
	URL      string `json:"model_url"`
	Size     int64  `json:"size"`
}

// Store keeps assets in a directory.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// New returns a store rooted at dir, creating it when missing.
func New(dir string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// MaxBytes returns the upload limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// ContentType returns the MIME type served for name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Save writes r under a generated name derived from the extension of
// original.
func (s *Store) Save(original string, r io.Reader) (Asset, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if _, ok := contentTypes[ext]; !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	name := fmt.Sprintf("model_%d_%s%s", s.now().UnixMilli(), uuid.NewString()[:8], ext)
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("create asset: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return Asset{}, err
		}
		return Asset{}, fmt.Errorf("write asset: %w", err)
	}
	return Asset{Filename: name, URL: URLPrefix + name, Size: n}, nil
}

// Open returns the stored file called name.
func (s *Store) Open(name string) (*os.File, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove deletes the file an asset URL points to. Missing files and URLs
// outside URLPrefix are ignored.
func (s *Store) Remove(assetURL string) error {
	name, ok := FilenameFromURL(assetURL)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove asset: %w", err)
	}
	return nil
}

// FilenameFromURL extracts the file name from "/models/x.glb",
// "models/x.glb" or an absolute URL with that path.
func FilenameFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		p = u.Path
	}
	p = "/" + strings.TrimPrefix(p, "/")
	if !strings.HasPrefix(p, URLPrefix) {
		return "", false
	}
	name := path.Base(p)
	if !validName(name) || URLPrefix+name != p {
		return "", false
	}
	return name, true
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}
