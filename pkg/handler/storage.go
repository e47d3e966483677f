package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

const tmpDir = "tmp"

// Storage keeps submitted handler sources as flat files.
type Storage struct {
	root string
}

// NewStorage creates a Storage rooted at root. Directories are created on
// first write.
func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

// Save writes source as <root>/<name><ext>. With temp set it goes to a fresh
// directory under <root>/tmp instead, so concurrent temporary loads of one
// name never share a file. The returned cleanup removes the temporary copy
// and is a no-op for permanent ones.
func (s *Storage) Save(name string, source []byte, format Format, temp bool) (string, func() error, error) {
	if err := ValidateName(name); err != nil {
		return "", nil, err
	}

	path := s.Path(name, format)
	cleanup := func() error { return nil }
	if temp {
		scratch := filepath.Join(s.root, tmpDir)
		if err := os.MkdirAll(scratch, 0o755); err != nil {
			return "", nil, fmt.Errorf("create handler directory: %w", err)
		}
		dir, err := os.MkdirTemp(scratch, name+"-")
		if err != nil {
			return "", nil, fmt.Errorf("create handler directory: %w", err)
		}
		path = filepath.Join(dir, name+format.ext())
		cleanup = func() error { return removeTemp(dir, name, format) }
	} else if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", nil, fmt.Errorf("create handler directory: %w", err)
	}

	if err := os.WriteFile(path, source, 0o644); err != nil {
		_ = cleanup()
		return "", nil, fmt.Errorf("write handler source: %w", err)
	}
	return path, cleanup, nil
}

// Path returns the location of a saved permanent handler.
func (s *Storage) Path(name string, format Format) string {
	return filepath.Join(s.root, name+format.ext())
}

// removeTemp deletes <name><ext> and anything derived from it in dir, then
// dir itself.
func removeTemp(dir, name string, format Format) error {
	matches, err := doublestar.Glob(os.DirFS(dir), doublestar.QuoteMeta(name+format.ext())+"*")
	if err != nil {
		return err
	}

	var errs []error
	for _, m := range matches {
		if err := os.RemoveAll(filepath.Join(dir, filepath.FromSlash(m))); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
