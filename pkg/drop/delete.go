package drop

import (
	"context"

	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/pkg/access"
)

// Delete removes a drop and its blob. Owner-only.
//
// The metadata delete commits first; the blob delete runs afterwards and is
// best-effort. An orphaned blob is invisible (no row points at it) and wastes
// only disk, whereas a dangling row pointing at a deleted blob would break
// every later download. A repeated delete finds no row and reports not-found.
func (s *Service) Delete(ctx context.Context, slug string, caller access.Caller) error {
	d, err := s.load(ctx, slug)
	if err != nil {
		return err
	}
	if err := access.EvaluateMutate(d, caller).Err(); err != nil {
		return err
	}

	var storageKey string
	if d.File != nil {
		storageKey = d.File.StorageKey
	}

	if err := s.store.DeleteDrop(ctx, d.ID); err != nil {
		return err
	}

	if storageKey != "" {
		if err := s.blobs.Delete(ctx, storageKey); err != nil {
			logger.Warn("failed to delete blob for removed drop",
				"slug", slug, "key", storageKey, "error", err)
		}
	}

	logger.Info("drop deleted", "slug", slug, "owner", caller.Identity)
	return nil
}
