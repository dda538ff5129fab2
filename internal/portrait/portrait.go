// Package portrait manages the portrait images kept in the data directory.
//
// Records only store a path. Images copied in by Import are owned by the
// store and may be removed; any other path is left alone.
package portrait

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Extensions are the accepted image file extensions, lower case.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

// ErrUnsupportedFormat is returned for files without an accepted extension.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Store copies portraits into a directory it owns.
type Store struct {
	dir    string
	names  func() string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNames replaces the UUIDv7 file name generator.
func WithNames(f func() string) Option {
	return func(s *Store) { s.names = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a store for dir. The directory is created on first import.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    filepath.Clean(dir),
		names:  func() string { return uuid.Must(uuid.NewV7()).String() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the owned directory.
func (s *Store) Dir() string {
	return s.dir
}

// Owns reports whether path is a file inside the store's directory.
func (s *Store) Owns(path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

// Import copies src into the store and returns the stored path. A path the
// store already owns is returned unchanged.
func (s *Store) Import(src string) (string, error) {
	if s.Owns(src) {
		return src, nil
	}
	return s.Copy(src)
}

// Copy stores a fresh copy of src, even when the store already owns it, so
// the two paths can be removed independently.
func (s *Store) Copy(src string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if !slices.Contains(Extensions, ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(src))
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open portrait: %w", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat portrait: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("portrait %s is not a regular file", src)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create portrait directory: %w", err)
	}
	dest := filepath.Join(s.dir, s.names()+ext)
	if err := copyAtomic(in, dest); err != nil {
		return "", err
	}
	s.logger.Info("portrait stored", zap.String("source", src), zap.String("path", dest))
	return dest, nil
}

// Remove deletes path if the store owns it. Paths outside the store and
// files that are already gone are ignored.
func (s *Store) Remove(path string) error {
	if !s.Owns(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove portrait: %w", err)
	}
	s.logger.Info("portrait removed", zap.String("path", path))
	return nil
}

// copyAtomic writes r to a temp file beside dest and renames it into place.
func copyAtomic(r io.Reader, dest string) (err error) {
	f, err := os.CreateTemp(filepath.Dir(dest), ".portrait-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("copy portrait: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync portrait: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close portrait: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("store portrait: %w", err)
	}
	return nil
}
