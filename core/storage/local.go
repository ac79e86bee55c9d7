package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local implements FileStore on top of a directory.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string { return l.root }

// LocalPath returns the filesystem path backing a storage path. Paths that
// try to escape the root are confined to it.
func (l *Local) LocalPath(path string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	return filepath.Join(l.root, strings.TrimPrefix(clean, string(filepath.Separator)))
}

func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(l.LocalPath(path))
}

// Write writes into a temporary sibling file that is renamed into place on
// Close, so readers never observe a partially written file.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.LocalPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: f, target: full}, nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.LocalPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.LocalPath(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) URI(path string) string { return l.LocalPath(path) }

type atomicFile struct {
	*os.File
	target string
	closed bool
}

func (f *atomicFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.File.Name())
		return err
	}
	if err := os.Rename(f.File.Name(), f.target); err != nil {
		_ = os.Remove(f.File.Name())
		return err
	}
	return nil
}

var _ FileStore = (*Local)(nil)

// Abort drops the temporary file without touching the target.
func (f *atomicFile) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true

	_ = f.File.Close()
	return os.Remove(f.File.Name())
}
