package drop

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/blob/local"
	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

var (
	owner    = access.Caller{Identity: "operator", Authenticated: true}
	stranger = access.Caller{Identity: "intruder", Authenticated: true}
)

type fixture struct {
	svc   *Service
	store *store.Store
	blobs *local.Store
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := local.New(t.TempDir())
	require.NoError(t, err)

	verifier := access.NewVerifier(access.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
	return &fixture{
		svc:   NewService(st, blobs, verifier, opts),
		store: st,
		blobs: blobs,
	}
}

func (f *fixture) create(t *testing.T, in CreateInput, content string) *models.Snapshot {
	t.Helper()
	snapshot, err := f.svc.Create(context.Background(), in, strings.NewReader(content))
	require.NoError(t, err)
	return snapshot
}

// blobFileCount counts regular files under the blob root, temp files included.
func (f *fixture) blobFileCount(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(f.blobs.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestCreateRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	snapshot := f.create(t, CreateInput{
		Slug:     "greet",
		Title:    "Greeting",
		OwnerID:  "operator",
		FileName: "hello.txt",
		MediaType: "text/plain; charset=utf-8",
	}, "hello\n")

	assert.Equal(t, "greet", snapshot.Slug)
	assert.Equal(t, int64(6), snapshot.FileSize)
	assert.Equal(t, "text/plain", snapshot.MediaType)
	assert.False(t, snapshot.HasPassphrase)
	// sha256("hello\n")
	assert.Equal(t, "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03", snapshot.ContentHash)

	content, err := f.svc.Download(ctx, "greet", access.Anonymous, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), content.Size)

	rc, err := content.Open(ctx)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	rrc, err := content.OpenRange(ctx, 1, 3)
	require.NoError(t, err)
	defer rrc.Close()
	part, err := io.ReadAll(rrc)
	require.NoError(t, err)
	assert.Equal(t, "ell", string(part))
}

func TestCreateGeneratedSlug(t *testing.T) {
	f := newFixture(t, Options{SlugAlphabet: "ab", SlugLength: 12})

	snapshot := f.create(t, CreateInput{OwnerID: "operator", FileName: "f"}, "x")
	assert.Len(t, snapshot.Slug, 12)
	for _, r := range snapshot.Slug {
		assert.Contains(t, "ab", string(r))
	}
}

func TestCreateGeneratedSlugCollisionRetries(t *testing.T) {
	f := newFixture(t, Options{SlugAlphabet: "a", SlugLength: 4})
	ctx := context.Background()

	// A one-letter alphabet makes every generated slug "aaaa", so the first
	// create claims the only candidate.
	first := f.create(t, CreateInput{OwnerID: "operator", FileName: "f"}, "x")
	require.Equal(t, "aaaa", first.Slug)

	// Each collision on the unique index consumes a retry rather than
	// surfacing as a slug conflict.
	_, err := f.svc.Create(ctx, CreateInput{OwnerID: "operator", FileName: "f"},
		strings.NewReader("y"))
	assert.ErrorIs(t, err, models.ErrSlugExhausted)
	assert.NotErrorIs(t, err, models.ErrSlugTaken)
}

func TestCreateRejectsMalformedMediaType(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{
		Slug: "badtype", OwnerID: "operator", FileName: "f",
		MediaType: ">>>not a media type<<<",
	}, strings.NewReader("x"))
	assert.ErrorIs(t, err, models.ErrValidation)

	// An absent declared type still falls back to octet-stream.
	snapshot := f.create(t, CreateInput{Slug: "notype", OwnerID: "operator", FileName: "f"}, "x")
	assert.Equal(t, "application/octet-stream", snapshot.MediaType)
}

func TestCreateSlugValidation(t *testing.T) {
	f := newFixture(t, Options{ReservedSlugs: []string{"api", "health"}})
	ctx := context.Background()

	for _, slug := range []string{"ab", "has space", "uni/code", strings.Repeat("x", 65), "api"} {
		_, err := f.svc.Create(ctx, CreateInput{Slug: slug, OwnerID: "operator", FileName: "f"},
			strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrSlugInvalid, "slug %q", slug)
	}
}

func TestCreateSlugConflictLeavesNoBlob(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "dup1", OwnerID: "operator", FileName: "f"}, "first")
	require.Equal(t, 1, f.blobFileCount(t))

	_, err := f.svc.Create(ctx, CreateInput{Slug: "dup1", OwnerID: "operator", FileName: "f"},
		strings.NewReader("second"))
	assert.ErrorIs(t, err, models.ErrSlugTaken)

	// The failed attempt never reached the blob store.
	assert.Equal(t, 1, f.blobFileCount(t))
}

func TestCreateSizeLimit(t *testing.T) {
	f := newFixture(t, Options{MaxUploadSize: 4, ChunkSize: 2})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{Slug: "toobig", OwnerID: "operator", FileName: "f"},
		strings.NewReader("12345"))
	assert.ErrorIs(t, err, models.ErrSizeLimitExceeded)

	// Rollback left neither a row nor a blob (temp included).
	_, err = f.store.GetDropBySlug(ctx, "toobig", false)
	assert.ErrorIs(t, err, models.ErrDropNotFound)
	assert.Equal(t, 0, f.blobFileCount(t))

	// Exactly at the limit is fine.
	f.create(t, CreateInput{Slug: "fits", OwnerID: "operator", FileName: "f",
		MediaType: "application/octet-stream"}, "1234")
}

func TestCreateRequiresAuth(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{OwnerID: "", FileName: "f"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, models.ErrAuthRequired)
	_, err = f.svc.Create(ctx, CreateInput{OwnerID: models.OwnerAnonymous, FileName: "f"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, models.ErrAuthRequired)
}

// failingBlobStore accepts writes but refuses to publish, driving the create
// path down its rollback branch.
type failingBlobStore struct {
	blob.Store
}

type failingSession struct{}

func (failingSession) Write(p []byte) (int, error) { return len(p), nil }
func (failingSession) Commit() error               { return errors.New("disk full") }
func (failingSession) Abort() error                { return nil }

func (f *failingBlobStore) OpenWrite(ctx context.Context, key string) (blob.WriteSession, error) {
	return failingSession{}, nil
}

func TestCreateBlobFailureRollsBack(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	svc := NewService(f.store, &failingBlobStore{Store: f.blobs}, f.svc.Verifier(), Options{})
	_, err := svc.Create(ctx, CreateInput{Slug: "doomed", OwnerID: "operator", FileName: "f"},
		strings.NewReader("x"))
	require.Error(t, err)

	// The metadata transaction rolled back with the blob.
	_, err = f.store.GetDropBySlug(ctx, "doomed", false)
	assert.ErrorIs(t, err, models.ErrDropNotFound)

	// The slug is free for a working retry.
	f.create(t, CreateInput{Slug: "doomed", OwnerID: "operator", FileName: "f"}, "x")
}

func TestPassphraseFlows(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "sec1", Passphrase: "open", OwnerID: "operator", FileName: "f"}, "x")

	_, err := f.svc.Get(ctx, "sec1", access.Anonymous, "")
	assert.ErrorIs(t, err, models.ErrPasswordRequired)
	_, err = f.svc.Get(ctx, "sec1", access.Anonymous, "shut")
	assert.ErrorIs(t, err, models.ErrPasswordInvalid)

	snapshot, err := f.svc.Get(ctx, "sec1", access.Anonymous, "open")
	require.NoError(t, err)
	assert.True(t, snapshot.HasPassphrase)

	// The owner bypasses the passphrase.
	_, err = f.svc.Get(ctx, "sec1", owner, "")
	require.NoError(t, err)

	// Remove it and anonymous reads work again.
	_, err = f.svc.RemovePassword(ctx, "sec1", owner)
	require.NoError(t, err)
	snapshot, err = f.svc.Get(ctx, "sec1", access.Anonymous, "")
	require.NoError(t, err)
	assert.False(t, snapshot.HasPassphrase)

	// Rotate a fresh one via SetPassword.
	_, err = f.svc.SetPassword(ctx, "sec1", owner, "next")
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, "sec1", access.Anonymous, "next")
	require.NoError(t, err)
}

func TestPrivateDrop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "priv1", Private: true, OwnerID: "operator", FileName: "f"}, "x")

	_, err := f.svc.Get(ctx, "priv1", access.Anonymous, "")
	assert.ErrorIs(t, err, models.ErrAuthRequired)
	_, err = f.svc.Get(ctx, "priv1", stranger, "")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.Get(ctx, "priv1", owner, "")
	require.NoError(t, err)
}

func TestUpdateOperations(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	created := f.create(t, CreateInput{Slug: "edit", Title: "old", OwnerID: "operator", FileName: "f"}, "x")

	title := "new title"
	snapshot, err := f.svc.UpdateDetail(ctx, "edit", owner, DetailUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new title", snapshot.Title)

	// Mutations are owner-only; the passphrase never grants them.
	_, err = f.svc.UpdateDetail(ctx, "edit", stranger, DetailUpdate{Title: &title})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.UpdateDetail(ctx, "edit", access.Anonymous, DetailUpdate{Title: &title})
	assert.ErrorIs(t, err, models.ErrAuthRequired)

	snapshot, err = f.svc.UpdatePermission(ctx, "edit", owner, true)
	require.NoError(t, err)
	assert.True(t, snapshot.Private)

	// Favorite toggles do not masquerade as content changes.
	before, err := f.svc.Get(ctx, "edit", owner, "")
	require.NoError(t, err)
	snapshot, err = f.svc.UpdateFavorite(ctx, "edit", owner, true)
	require.NoError(t, err)
	assert.True(t, snapshot.Favorite)
	assert.Equal(t, before.UpdatedAt.UTC(), snapshot.UpdatedAt.UTC())

	assert.True(t, snapshot.UpdatedAt.After(created.CreatedAt) || snapshot.UpdatedAt.Equal(created.CreatedAt))
}

func TestFavoriteTouchOption(t *testing.T) {
	f := newFixture(t, Options{FavoriteTouch: true})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "fave", OwnerID: "operator", FileName: "f"}, "x")
	before, err := f.svc.Get(ctx, "fave", owner, "")
	require.NoError(t, err)

	snapshot, err := f.svc.UpdateFavorite(ctx, "fave", owner, true)
	require.NoError(t, err)
	assert.True(t, !snapshot.UpdatedAt.Before(before.UpdatedAt))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "gone", OwnerID: "operator", FileName: "f"}, "bytes")
	require.Equal(t, 1, f.blobFileCount(t))

	assert.ErrorIs(t, f.svc.Delete(ctx, "gone", stranger), models.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, "gone", owner))
	assert.Equal(t, 0, f.blobFileCount(t))

	// Repeat delete reports not-found.
	assert.ErrorIs(t, f.svc.Delete(ctx, "gone", owner), models.ErrDropNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "one1", OwnerID: "operator", FileName: "f"}, "x")
	f.create(t, CreateInput{Slug: "two2", OwnerID: "operator", FileName: "f"}, "xy")

	snapshots, total, err := f.svc.List(ctx, owner, store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, snapshots, 2)

	_, _, err = f.svc.List(ctx, access.Anonymous, store.ListOptions{})
	assert.ErrorIs(t, err, models.ErrAuthRequired)
}

func TestKeyCheck(t *testing.T) {
	f := newFixture(t, Options{ReservedSlugs: []string{"api"}})
	ctx := context.Background()

	f.create(t, CreateInput{Slug: "used", OwnerID: "operator", FileName: "f"}, "x")

	exists, err := f.svc.KeyCheck(ctx, "used")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.svc.KeyCheck(ctx, "api")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.svc.KeyCheck(ctx, "free")
	require.NoError(t, err)
	assert.False(t, exists)
}
