// Package blob defines the content-addressed byte storage contract used by
// the drop coordinator. Two backends implement it: a local filesystem store
// and an S3-compatible object store. All other packages depend only on the
// Store interface.
package blob

import (
	"context"
	"io"
	"time"
)

// DefaultChunkSize is the streaming chunk size used for uploads and
// downloads when the configuration does not override it.
const DefaultChunkSize = 1 << 20 // 1 MiB

// TempSuffix marks in-flight writes. Commit renames the temp object to its
// final key; the startup sweep reclaims temp objects older than the cutoff.
const TempSuffix = ".tmp"

// WriteSession is a streaming sink for a single blob. The writer must call
// exactly one of Commit or Abort; Abort after Commit is a no-op.
type WriteSession interface {
	io.Writer

	// Commit atomically publishes the written bytes under the session key.
	Commit() error

	// Abort discards the written bytes. Safe to call after a failed Commit.
	Abort() error
}

// Store is the byte vault behind every drop.
//
// Keys are opaque slash-separated paths derived from file ids (see
// models.StorageKeyFor). Delete is idempotent: deleting an absent key is not
// an error. Read and ReadRange return models.ErrBlobNotFound for unknown
// keys; ReadRange returns models.ErrRangeInvalid when the requested range
// does not satisfy 0 <= start <= end < size.
type Store interface {
	// OpenWrite starts a streaming write for key. Bytes land on a temp
	// object until Commit publishes them.
	OpenWrite(ctx context.Context, key string) (WriteSession, error)

	// Read opens the whole blob for sequential reading.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// ReadRange opens the inclusive byte range [start, end] for reading.
	ReadRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)

	// Stat returns the blob size in bytes.
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the blob. Absence is not an error.
	Delete(ctx context.Context, key string) error

	// Move renames src to dst.
	Move(ctx context.Context, src, dst string) error
}

// Sweeper is implemented by backends that can reclaim stale temp objects
// left behind by crashed uploads. The server runs it once at startup.
type Sweeper interface {
	// SweepTemp deletes temp objects older than maxAge and returns the
	// number removed.
	SweepTemp(ctx context.Context, maxAge time.Duration) (int, error)
}
