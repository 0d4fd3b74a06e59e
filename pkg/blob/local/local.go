// Package local implements the blob store on the local filesystem.
//
// Blobs live under a configurable root at their storage key path. Writes go
// to a sibling temp file and are published with an atomic same-directory
// rename, so a crash never leaves a partially written blob at a final key.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/models"
)

// Store is a filesystem-backed blob store rooted at a single directory.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Store{root: absRoot}, nil
}

// Root returns the absolute storage root directory.
func (s *Store) Root() string {
	return s.root
}

// abs resolves a storage key to a concrete filesystem path and verifies the
// result still lives under the root. Keys are derived from file ids and
// should never escape, but the check is kept as the last line of defense for
// any caller that feeds raw input.
func (s *Store) abs(key string) (string, error) {
	joined := filepath.Join(s.root, filepath.Clean(filepath.FromSlash(key)))
	rel, err := filepath.Rel(s.root, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: key %q escapes storage root", models.ErrStorage, key)
	}
	return joined, nil
}

// writeSession implements blob.WriteSession over a temp file.
type writeSession struct {
	f     *os.File
	tmp   string
	final string
	done  bool
}

func (w *writeSession) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *writeSession) Commit() error {
	if w.done {
		return nil
	}
	// Flush to stable storage before the rename publishes the key, so a
	// crash right after publication cannot expose a truncated blob.
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.tmp)
		return fmt.Errorf("%w: sync %q: %v", models.ErrStorage, w.tmp, err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("%w: flush %q: %v", models.ErrStorage, w.tmp, err)
	}
	if err := os.Rename(w.tmp, w.final); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("%w: publish %q: %v", models.ErrStorage, w.final, err)
	}
	w.done = true
	return nil
}

func (w *writeSession) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	if err := os.Remove(w.tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: abort %q: %v", models.ErrStorage, w.tmp, err)
	}
	return nil
}

// OpenWrite starts a streaming write for key. The temp file shares the final
// file's directory so the publishing rename stays on one filesystem.
func (s *Store) OpenWrite(ctx context.Context, key string) (blob.WriteSession, error) {
	dest, err := s.abs(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, fmt.Errorf("%w: mkdir %q: %v", models.ErrStorage, filepath.Dir(dest), err)
	}

	tmp := dest + blob.TempSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("%w: open temp %q: %v", models.ErrStorage, tmp, err)
	}
	return &writeSession{f: f, tmp: tmp, final: dest}, nil
}

// Read opens the whole blob for sequential reading.
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	abs, err := s.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrBlobNotFound
		}
		return nil, fmt.Errorf("%w: open %q: %v", models.ErrStorage, key, err)
	}
	return f, nil
}

// rangeReader limits reads to the requested window and closes the file.
type rangeReader struct {
	io.Reader
	f *os.File
}

func (r *rangeReader) Close() error {
	return r.f.Close()
}

// ReadRange opens the inclusive byte range [start, end] for reading.
func (s *Store) ReadRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	abs, err := s.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrBlobNotFound
		}
		return nil, fmt.Errorf("%w: open %q: %v", models.ErrStorage, key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %q: %v", models.ErrStorage, key, err)
	}
	if start < 0 || end < start || end >= info.Size() {
		f.Close()
		return nil, models.ErrRangeInvalid
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seek %q: %v", models.ErrStorage, key, err)
	}
	return &rangeReader{Reader: io.LimitReader(f, end-start+1), f: f}, nil
}

// Stat returns the blob size in bytes.
func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	abs, err := s.abs(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, models.ErrBlobNotFound
		}
		return 0, fmt.Errorf("%w: stat %q: %v", models.ErrStorage, key, err)
	}
	return info.Size(), nil
}

// Delete removes the blob. Absence is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	abs, err := s.abs(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete %q: %v", models.ErrStorage, key, err)
	}
	return nil
}

// Move renames src to dst, creating dst's parent directories.
func (s *Store) Move(ctx context.Context, src, dst string) error {
	absSrc, err := s.abs(src)
	if err != nil {
		return err
	}
	absDst, err := s.abs(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absDst), 0o750); err != nil {
		return fmt.Errorf("%w: mkdir %q: %v", models.ErrStorage, filepath.Dir(absDst), err)
	}
	if err := os.Rename(absSrc, absDst); err != nil {
		if os.IsNotExist(err) {
			return models.ErrBlobNotFound
		}
		return fmt.Errorf("%w: move %q to %q: %v", models.ErrStorage, src, dst, err)
	}
	return nil
}

// SweepTemp walks the storage tree and removes temp files whose modification
// time is older than maxAge. Blobs at final keys are never touched.
func (s *Store) SweepTemp(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), blob.TempSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove stale temp blob", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("%w: sweep: %v", models.ErrStorage, err)
	}
	return removed, nil
}
