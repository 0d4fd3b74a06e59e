package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teledrop/teledrop/pkg/models"
)

// SortKey selects the ordering column for drop listings.
type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByTitle     SortKey = "title"
	SortBySize      SortKey = "size"
)

// Valid reports whether the sort key is one the store can order by.
func (k SortKey) Valid() bool {
	switch k {
	case SortByCreatedAt, SortByTitle, SortBySize:
		return true
	}
	return false
}

// ListOptions controls pagination and ordering of drop listings.
type ListOptions struct {
	SortBy     SortKey
	Descending bool
	Page       int // 1-based
	PerPage    int
}

func (o *ListOptions) applyDefaults() {
	if !o.SortBy.Valid() {
		o.SortBy = SortByCreatedAt
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = 20
	}
	if o.PerPage > 200 {
		o.PerPage = 200
	}
}

// CreateDrop inserts a new drop row. A unique-constraint violation on the
// slug surfaces as models.ErrSlugTaken, which the coordinator either
// propagates (user-supplied slug) or retries (generated slug).
func (s *Store) CreateDrop(ctx context.Context, drop *models.Drop) error {
	if err := s.db.WithContext(ctx).Create(drop).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrSlugTaken
		}
		return err
	}
	return nil
}

// CreateFile inserts the file row backing a drop.
func (s *Store) CreateFile(ctx context.Context, file *models.File) error {
	return s.db.WithContext(ctx).Create(file).Error
}

// GetDropBySlug loads a drop by its slug, optionally eager-loading the file.
func (s *Store) GetDropBySlug(ctx context.Context, slug string, withFile bool) (*models.Drop, error) {
	q := s.db.WithContext(ctx)
	if withFile {
		q = q.Preload("File")
	}
	var drop models.Drop
	if err := q.Where("slug = ?", slug).First(&drop).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrDropNotFound)
	}
	return &drop, nil
}

// SlugExists reports whether a live drop already claims the slug. Advisory
// only: CreateDrop re-checks under the unique constraint.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Drop{}).
		Where("slug = ?", slug).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListDrops returns one page of the owner's drops plus the total count.
// Sorting by size joins the files table; all keys get a stable slug
// tiebreaker so pages do not shuffle between requests.
func (s *Store) ListDrops(ctx context.Context, ownerID string, opts ListOptions) ([]*models.Drop, int64, error) {
	opts.applyDefaults()

	base := s.db.WithContext(ctx).Model(&models.Drop{}).
		Where("drops.owner_id = ?", ownerID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}

	q := s.db.WithContext(ctx).Model(&models.Drop{}).
		Preload("File").
		Where("drops.owner_id = ?", ownerID)

	switch opts.SortBy {
	case SortBySize:
		q = q.Joins("LEFT JOIN files ON files.drop_id = drops.id").
			Order("files.size " + dir)
	case SortByTitle:
		q = q.Order("drops.title " + dir)
	default:
		q = q.Order("drops.created_at " + dir)
	}
	q = q.Order("drops.slug ASC")

	var drops []*models.Drop
	err := q.Offset((opts.Page - 1) * opts.PerPage).
		Limit(opts.PerPage).
		Find(&drops).Error
	if err != nil {
		return nil, 0, err
	}
	return drops, total, nil
}

// UpdateDropFields applies a partial update to the drop row. When touch is
// true, updated_at is set to now; favorite toggles pass touch=false so a UI
// marker does not masquerade as a content change.
func (s *Store) UpdateDropFields(ctx context.Context, dropID string, fields map[string]any, touch bool) error {
	if touch {
		fields["updated_at"] = time.Now().UTC()
	}
	// UpdateColumns skips GORM's automatic updated_at bump, so the column
	// changes only when touch put it in the map.
	result := s.db.WithContext(ctx).Model(&models.Drop{}).
		Where("id = ?", dropID).
		UpdateColumns(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrDropNotFound
	}
	return nil
}

// DeleteDrop removes the drop and its file row. The caller captures the
// storage key before invoking this and deletes the blob after commit.
func (s *Store) DeleteDrop(ctx context.Context, dropID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("drop_id = ?", dropID).Delete(&models.File{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", dropID).Delete(&models.Drop{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrDropNotFound
		}
		return nil
	})
}
