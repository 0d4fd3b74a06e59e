// Package models defines the persistent entities of Teledrop.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Drop{},
		&File{},
		&APIKey{},
	}
}

// OwnerAnonymous is the sentinel owner identity for drops created without
// authentication.
const OwnerAnonymous = "anonymous"
