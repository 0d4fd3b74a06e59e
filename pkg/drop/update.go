package drop

import (
	"context"
	"fmt"

	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/models"
)

// DetailUpdate carries a partial metadata edit. Nil fields are untouched.
type DetailUpdate struct {
	Title       *string
	Description *string
}

// UpdateDetail edits title and description. Owner-only; bumps updated_at.
func (s *Service) UpdateDetail(ctx context.Context, slug string, caller access.Caller, upd DetailUpdate) (*models.Snapshot, error) {
	if upd.Title == nil && upd.Description == nil {
		return nil, fmt.Errorf("%w: nothing to update", models.ErrValidation)
	}
	if upd.Title != nil && len(*upd.Title) > MaxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d characters", models.ErrValidation, MaxTitleLength)
	}
	if upd.Description != nil && len(*upd.Description) > MaxDescriptionLength {
		return nil, fmt.Errorf("%w: description exceeds %d characters", models.ErrValidation, MaxDescriptionLength)
	}

	fields := map[string]any{}
	if upd.Title != nil {
		fields["title"] = *upd.Title
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	return s.applyOwned(ctx, slug, caller, fields, true)
}

// UpdatePermission flips the private flag. Owner-only; bumps updated_at.
func (s *Service) UpdatePermission(ctx context.Context, slug string, caller access.Caller, private bool) (*models.Snapshot, error) {
	return s.applyOwned(ctx, slug, caller, map[string]any{"private": private}, true)
}

// UpdateFavorite flips the favorite marker. Owner-only. The toggle leaves
// updated_at alone unless FavoriteTouch restores the legacy bump: a UI
// bookmark is not a content change.
func (s *Service) UpdateFavorite(ctx context.Context, slug string, caller access.Caller, favorite bool) (*models.Snapshot, error) {
	return s.applyOwned(ctx, slug, caller, map[string]any{"favorite": favorite}, s.opts.FavoriteTouch)
}

// SetPassword installs or replaces the download passphrase. Owner-only.
func (s *Service) SetPassword(ctx context.Context, slug string, caller access.Caller, passphrase string) (*models.Snapshot, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: passphrase must not be empty", models.ErrValidation)
	}
	if len(passphrase) > MaxPassphraseLength {
		return nil, fmt.Errorf("%w: passphrase exceeds %d characters", models.ErrValidation, MaxPassphraseLength)
	}

	hash, err := s.verifier.Hash(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to hash passphrase: %w", err)
	}
	return s.applyOwned(ctx, slug, caller, map[string]any{"passphrase_hash": hash}, true)
}

// RemovePassword clears the download passphrase. Owner-only.
func (s *Service) RemovePassword(ctx context.Context, slug string, caller access.Caller) (*models.Snapshot, error) {
	return s.applyOwned(ctx, slug, caller, map[string]any{"passphrase_hash": ""}, true)
}

// applyOwned runs the owner-only check, applies the partial update, and
// returns the refreshed projection.
func (s *Service) applyOwned(ctx context.Context, slug string, caller access.Caller, fields map[string]any, touch bool) (*models.Snapshot, error) {
	d, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := access.EvaluateMutate(d, caller).Err(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateDropFields(ctx, d.ID, fields, touch); err != nil {
		return nil, err
	}

	updated, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	return updated.ToSnapshot(), nil
}
