package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// File records the bytes backing a drop. Exactly one file exists per drop;
// the unique index on DropID enforces the 1:1 relationship at rest.
type File struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	DropID      string    `gorm:"uniqueIndex;not null;size:36" json:"drop_id"`
	Name        string    `gorm:"not null;size:512" json:"name"`
	MediaType   string    `gorm:"not null;size:255" json:"media_type"`
	Size        int64     `gorm:"not null" json:"size"`
	ContentHash string    `gorm:"not null;size:64" json:"content_hash"`
	StorageKey  string    `gorm:"not null;size:128" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// StorageKeyFor derives the blob storage key for a file id.
//
// The key is hex(sha256(file_id)) split as hh/hh/rest. The two-level fan-out
// caps per-directory entries, and the key is not guessable from the slug.
func StorageKeyFor(fileID string) string {
	sum := sha256.Sum256([]byte(fileID))
	h := hex.EncodeToString(sum[:])
	return h[0:2] + "/" + h[2:4] + "/" + h[4:]
}
