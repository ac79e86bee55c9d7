// Package storage keeps uploaded and generated audio files. Callers pass
// forward-slash paths relative to the store root, so the local disk and an
// S3-compatible bucket are interchangeable.
package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore is the minimal file interface the pipeline needs.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file. Missing files yield an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any previous
	// content. Data is only guaranteed to be stored once Close returns nil.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)

	// URI returns a human readable location for path, used in logs and
	// persisted records.
	URI(path string) string
}

// Aborter is implemented by writers that can discard what was written
// instead of committing it on Close.
type Aborter interface {
	Abort() error
}

// abort discards w when it supports it and closes it otherwise.
func abort(w io.WriteCloser) {
	if a, ok := w.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}

// WriteFile stores data at path in one call. A failed write is aborted so
// no truncated file is left behind.
func WriteFile(ctx context.Context, store FileStore, path string, data []byte) error {
	w, err := store.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	n, err := w.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		abort(w)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish writing %s: %w", path, err)
	}
	return nil
}

// ReadFile reads the whole file at path.
func ReadFile(ctx context.Context, store FileStore, path string) ([]byte, error) {
	r, err := store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
