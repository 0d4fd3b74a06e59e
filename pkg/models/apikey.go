package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// APIKey grants programmatic access as the operator identity.
//
// The key material is shown once at creation and stored only as a SHA-256
// digest. Lookups hash the presented key and compare digests.
type APIKey struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Name       string     `gorm:"not null;size:255" json:"name"`
	KeyHash    string     `gorm:"uniqueIndex;not null;size:64" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TableName returns the table name for APIKey.
func (APIKey) TableName() string {
	return "api_keys"
}

// APIKeyPrefix namespaces generated keys so they are recognizable in configs
// and secret scanners.
const APIKeyPrefix = "td_"

// GenerateAPIKey returns a fresh clear-text key and its storage digest.
func GenerateAPIKey() (clear string, digest string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	clear = APIKeyPrefix + hex.EncodeToString(raw)
	return clear, HashAPIKey(clear), nil
}

// HashAPIKey returns the storage digest for a clear-text key.
func HashAPIKey(clear string) string {
	sum := sha256.Sum256([]byte(clear))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether the presented clear-text key hashes to this key.
func (k *APIKey) Matches(clear string) bool {
	return subtle.ConstantTimeCompare([]byte(k.KeyHash), []byte(HashAPIKey(clear))) == 1
}
