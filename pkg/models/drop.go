package models

import (
	"time"
)

// Drop is the unit a user creates and shares: metadata plus exactly one file.
//
// The slug is the public identifier. The passphrase is stored only as an
// Argon2id verifier; the clear passphrase never touches the database.
type Drop struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Slug           string    `gorm:"uniqueIndex;not null;size:64" json:"slug"`
	Title          string    `gorm:"size:200" json:"title,omitempty"`
	Description    string    `gorm:"size:4096" json:"description,omitempty"`
	PassphraseHash string    `json:"-"`
	Private        bool      `gorm:"default:false" json:"private"`
	Favorite       bool      `gorm:"default:false" json:"favorite"`
	OwnerID        string    `gorm:"not null;size:255;index" json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// One-to-one relationship with the backing file.
	File *File `gorm:"foreignKey:DropID" json:"file,omitempty"`
}

// TableName returns the table name for Drop.
func (Drop) TableName() string {
	return "drops"
}

// HasPassphrase reports whether the drop is passphrase-protected.
func (d *Drop) HasPassphrase() bool {
	return d.PassphraseHash != ""
}

// IsOwnedBy reports whether the given identity owns this drop.
func (d *Drop) IsOwnedBy(identity string) bool {
	return identity != "" && identity != OwnerAnonymous && d.OwnerID == identity
}

// Snapshot is the public projection of a drop returned by the API.
// It never carries the passphrase verifier or the raw storage key.
type Snapshot struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title,omitempty"`
	Description   string    `json:"description,omitempty"`
	Private       bool      `json:"private"`
	Favorite      bool      `json:"favorite"`
	HasPassphrase bool      `json:"has_passphrase"`
	OwnerID       string    `json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size"`
	MediaType   string `json:"media_type,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// ToSnapshot builds the public projection.
func (d *Drop) ToSnapshot() *Snapshot {
	s := &Snapshot{
		ID:            d.ID,
		Slug:          d.Slug,
		Title:         d.Title,
		Description:   d.Description,
		Private:       d.Private,
		Favorite:      d.Favorite,
		HasPassphrase: d.HasPassphrase(),
		OwnerID:       d.OwnerID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.File != nil {
		s.FileName = d.File.Name
		s.FileSize = d.File.Size
		s.MediaType = d.File.MediaType
		s.ContentHash = d.File.ContentHash
	}
	return s
}
