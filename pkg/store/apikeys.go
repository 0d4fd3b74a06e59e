package store

import (
	"context"
	"time"

	"github.com/teledrop/teledrop/pkg/models"
)

// CreateAPIKey inserts a new API key record.
func (s *Store) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	return s.db.WithContext(ctx).Create(key).Error
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// GetAPIKeyByHash looks up a key by its storage digest.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.WithContext(ctx).Where("key_hash = ?", hash).First(&key).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrAPIKeyNotFound)
	}
	return &key, nil
}

// DeleteAPIKey removes a key by id.
func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.APIKey{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrAPIKeyNotFound
	}
	return nil
}

// TouchAPIKey records the last successful use of a key. Failures are
// ignored by callers; the timestamp is informational.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}
