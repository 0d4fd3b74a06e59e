package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeBlob(t *testing.T, s *Store, key, content string) {
	t.Helper()
	session, err := s.OpenWrite(context.Background(), key)
	require.NoError(t, err)
	_, err = session.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, session.Commit())
}

func TestWriteCommitRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	writeBlob(t, s, "ab/cd/deadbeef", "hello\n")

	rc, err := s.Read(ctx, "ab/cd/deadbeef")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	size, err := s.Stat(ctx, "ab/cd/deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)

	// No temp file survives a committed write.
	_, err = os.Stat(filepath.Join(s.Root(), "ab/cd/deadbeef"+blob.TempSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestAbortLeavesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.OpenWrite(ctx, "ab/cd/key")
	require.NoError(t, err)
	_, err = session.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, session.Abort())

	_, err = s.Read(ctx, "ab/cd/key")
	assert.ErrorIs(t, err, models.ErrBlobNotFound)
	_, err = os.Stat(filepath.Join(s.Root(), "ab/cd/key"+blob.TempSuffix))
	assert.True(t, os.IsNotExist(err))

	// Abort after Commit is a no-op.
	writeBlob(t, s, "ab/cd/other", "kept")
	session2, err := s.OpenWrite(ctx, "ab/cd/other")
	require.NoError(t, err)
	_, err = session2.Write([]byte("replaced"))
	require.NoError(t, err)
	require.NoError(t, session2.Commit())
	require.NoError(t, session2.Abort())

	rc, err := s.Read(ctx, "ab/cd/other")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "replaced", string(data))
}

func TestReadRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeBlob(t, s, "aa/bb/blob", "0123456789")

	rc, err := s.ReadRange(ctx, "aa/bb/blob", 2, 5)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))

	// Range bounds are checked against the blob size.
	_, err = s.ReadRange(ctx, "aa/bb/blob", 5, 2)
	assert.ErrorIs(t, err, models.ErrRangeInvalid)
	_, err = s.ReadRange(ctx, "aa/bb/blob", 0, 10)
	assert.ErrorIs(t, err, models.ErrRangeInvalid)
	_, err = s.ReadRange(ctx, "aa/bb/blob", -1, 3)
	assert.ErrorIs(t, err, models.ErrRangeInvalid)

	_, err = s.ReadRange(ctx, "aa/bb/missing", 0, 1)
	assert.ErrorIs(t, err, models.ErrBlobNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeBlob(t, s, "aa/bb/gone", "bytes")

	require.NoError(t, s.Delete(ctx, "aa/bb/gone"))
	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete(ctx, "aa/bb/gone"))

	_, err := s.Read(ctx, "aa/bb/gone")
	assert.ErrorIs(t, err, models.ErrBlobNotFound)
}

func TestKeyEscapeRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.OpenWrite(ctx, "../outside")
	assert.ErrorIs(t, err, models.ErrStorage)
	_, err = s.Read(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, models.ErrStorage)
}

func TestSweepTemp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A stale temp file from a crashed upload, an old published blob, and a
	// fresh in-flight temp file.
	writeBlob(t, s, "aa/bb/published", "keep")

	staleDir := filepath.Join(s.Root(), "cc", "dd")
	require.NoError(t, os.MkdirAll(staleDir, 0o750))
	stale := filepath.Join(staleDir, "crashed"+blob.TempSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o640))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(staleDir, "inflight"+blob.TempSuffix)
	require.NoError(t, os.WriteFile(fresh, []byte("partial"), 0o640))

	removed, err := s.SweepTemp(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	// Published blobs are never touched, whatever their age.
	size, err := s.Stat(ctx, "aa/bb/published")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}
