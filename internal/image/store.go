// Package image stores uploaded post images on the local filesystem.
//
// Files are renamed to UUIDs on save, so user-supplied names never reach the
// filesystem, and content types are sniffed from the bytes rather than
// trusted from the request.
package image

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors for image operations, checked with errors.Is().
var (
	// ErrTooLarge indicates the upload exceeds the configured size cap.
	ErrTooLarge = errors.New("image too large")

	// ErrUnsupportedType indicates the bytes are not a supported image format.
	ErrUnsupportedType = errors.New("unsupported image type")

	// ErrNotFound indicates no stored image matches the name.
	ErrNotFound = errors.New("image not found")
)

// extByType maps accepted sniffed content types to stored file extensions.
var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store saves and serves uploaded images under a single directory.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewStore creates an image store rooted at dir, creating it if needed.
func NewStore(dir string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if maxBytes < 1 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Save reads an image from r and stores it under a fresh UUID name.
// Returns the stored file name. The reader is capped at the configured
// size; oversized uploads fail with ErrTooLarge without writing anything.
func (s *Store) Save(r io.Reader) (string, error) {
	// Read one byte past the cap to distinguish at-cap from over-cap.
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrUnsupportedType)
	}

	contentType := http.DetectContentType(data)
	ext, ok := extByType[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}

	s.logger.Debug("image stored", "name", name, "bytes", len(data), "type", contentType)
	return name, nil
}

// Open returns a reader for a stored image and its content type. The caller
// closes the reader.
func (s *Store) Open(name string) (io.ReadCloser, string, error) {
	cleaned, err := s.safeName(name)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filepath.Join(s.dir, cleaned))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("opening image %s: %w", cleaned, err)
	}

	contentType := "application/octet-stream"
	for t, ext := range extByType {
		if strings.HasSuffix(cleaned, ext) {
			contentType = t
			break
		}
	}
	return f, contentType, nil
}

// Delete removes a stored image.
func (s *Store) Delete(name string) error {
	cleaned, err := s.safeName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, cleaned)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting image %s: %w", cleaned, err)
	}
	return nil
}

// safeName rejects names that could escape the upload directory. Stored
// names are always "<uuid><ext>", so anything with a separator or dot-dot
// is hostile.
func (s *Store) safeName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return name, nil
}
