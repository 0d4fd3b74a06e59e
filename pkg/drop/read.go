package drop

import (
	"context"
	"errors"
	"io"

	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

// Content describes a downloadable drop: the public projection plus handles
// to open the bytes. The gateway decides between a full read and a range
// read after parsing the Range header against Size.
type Content struct {
	Snapshot *models.Snapshot
	Size     int64

	blobs blob.Store
	key   string
}

// Open starts a sequential read of the whole blob.
func (c *Content) Open(ctx context.Context) (io.ReadCloser, error) {
	return c.blobs.Read(ctx, c.key)
}

// OpenRange starts a read of the inclusive byte range [start, end].
func (c *Content) OpenRange(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	return c.blobs.ReadRange(ctx, c.key, start, end)
}

// Get returns the public projection of a drop after the read-access check.
// Deny decisions surface as the matching sentinel error.
func (s *Service) Get(ctx context.Context, slug string, caller access.Caller, password string) (*models.Snapshot, error) {
	d, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := access.Evaluate(d, caller, password, s.verifier).Err(); err != nil {
		return nil, err
	}
	return d.ToSnapshot(), nil
}

// Download runs the read-access check and returns the content descriptor.
func (s *Service) Download(ctx context.Context, slug string, caller access.Caller, password string) (*Content, error) {
	d, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := access.Evaluate(d, caller, password, s.verifier).Err(); err != nil {
		return nil, err
	}
	if d.File == nil {
		// A drop without a file row means a torn create slipped through;
		// treat it as absent rather than crash the download path.
		return nil, models.ErrDropNotFound
	}

	return &Content{
		Snapshot: d.ToSnapshot(),
		Size:     d.File.Size,
		blobs:    s.blobs,
		key:      d.File.StorageKey,
	}, nil
}

// KeyCheck is the upload form's slug-availability probe. It answers whether
// the slug is already claimed; reserved slugs count as taken since they can
// never be claimed either.
func (s *Service) KeyCheck(ctx context.Context, slug string) (bool, error) {
	if _, reserved := s.reserved[slug]; reserved {
		return true, nil
	}
	return s.store.SlugExists(ctx, slug)
}

// List returns one page of the caller's drops. Listing is owner-only; an
// unauthenticated caller is refused.
func (s *Service) List(ctx context.Context, caller access.Caller, opts store.ListOptions) ([]*models.Snapshot, int64, error) {
	if !caller.Authenticated {
		return nil, 0, models.ErrAuthRequired
	}

	drops, total, err := s.store.ListDrops(ctx, caller.Identity, opts)
	if err != nil {
		return nil, 0, err
	}

	snapshots := make([]*models.Snapshot, len(drops))
	for i, d := range drops {
		snapshots[i] = d.ToSnapshot()
	}
	return snapshots, total, nil
}

// load fetches a drop with its file row, normalizing absence to the
// not-found sentinel.
func (s *Service) load(ctx context.Context, slug string) (*models.Drop, error) {
	d, err := s.store.GetDropBySlug(ctx, slug, true)
	if err != nil {
		if errors.Is(err, models.ErrDropNotFound) {
			return nil, models.ErrDropNotFound
		}
		return nil, err
	}
	return d, nil
}
