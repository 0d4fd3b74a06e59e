package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, StorageBackendLocal, cfg.Storage.Backend)
	assert.Equal(t, DefaultSlugLength, cfg.Upload.SlugLength)
	assert.Equal(t, DefaultReservedSlugs, cfg.Upload.ReservedSlugs)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1:9999"
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)
	cfg.Auth.OperatorPasswordHash = "$2a$10$fakehash"
	cfg.Upload.FavoriteTouch = true
	require.NoError(t, SaveConfig(cfg, path))

	// The config carries secrets and must not be world-readable.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", loaded.Server.ListenAddr)
	assert.Equal(t, cfg.Auth.JWTSecret, loaded.Auth.JWTSecret)
	assert.True(t, loaded.Upload.FavoriteTouch)
}

func TestValidateRejectsShortSecret(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Auth.JWTSecret = "short"
	cfg.Auth.OperatorPasswordHash = "$2a$10$fakehash"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)
	cfg.Auth.OperatorPasswordHash = "$2a$10$fakehash"

	cfg.Storage.Backend = StorageBackendS3
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	cfg.Storage.S3.Bucket = "drops"
	cfg.Storage.S3.Region = "eu-west-1"
	assert.NoError(t, Validate(cfg))
}
