package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageKeyFor(t *testing.T) {
	key := StorageKeyFor("some-file-id")

	// hh/hh/rest of hex(sha256(file_id)): 64 hex chars plus two slashes.
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 2)
	assert.Len(t, parts[1], 2)
	assert.Len(t, parts[2], 60)

	// Deterministic, and distinct ids fan out to distinct keys.
	assert.Equal(t, key, StorageKeyFor("some-file-id"))
	assert.NotEqual(t, key, StorageKeyFor("other-file-id"))
}

func TestDropOwnership(t *testing.T) {
	d := &Drop{OwnerID: "operator"}

	assert.True(t, d.IsOwnedBy("operator"))
	assert.False(t, d.IsOwnedBy("intruder"))
	assert.False(t, d.IsOwnedBy(""))
	// The anonymous identity never owns anything.
	anon := &Drop{OwnerID: OwnerAnonymous}
	assert.False(t, anon.IsOwnedBy(OwnerAnonymous))
}

func TestSnapshotHidesSecrets(t *testing.T) {
	d := &Drop{
		ID:             "id",
		Slug:           "slug",
		PassphraseHash: "$argon2id$...",
		OwnerID:        "operator",
		File: &File{
			Name:        "f.bin",
			Size:        42,
			MediaType:   "application/octet-stream",
			ContentHash: "abc",
			StorageKey:  "aa/bb/secret",
		},
	}

	s := d.ToSnapshot()
	assert.True(t, s.HasPassphrase)
	assert.Equal(t, int64(42), s.FileSize)
	assert.Equal(t, "f.bin", s.FileName)
}

func TestSnapshotZeroByteFileKeepsSize(t *testing.T) {
	d := &Drop{
		ID:      "id",
		Slug:    "slug",
		OwnerID: "operator",
		File:    &File{Name: "empty.bin", Size: 0},
	}

	body, err := json.Marshal(d.ToSnapshot())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"file_size":0`)
}

func TestAPIKeyMatches(t *testing.T) {
	clear, digest, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(clear, APIKeyPrefix))

	k := &APIKey{KeyHash: digest}
	assert.True(t, k.Matches(clear))
	assert.False(t, k.Matches("td_something-else"))
}
