package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/store"
)

// Default values applied when the config file or environment leaves a field
// unset.
const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultSlugAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultSlugLength      = 8
	DefaultSweepMaxAge     = 24 * time.Hour
	DefaultCookieName      = "teledrop_token"
)

// DefaultReservedSlugs are route segments a drop slug may never shadow.
var DefaultReservedSlugs = []string{
	"api", "health", "metrics", "static", "assets", "login", "logout",
	"keycheck", "preview",
}

// GetDefaultConfigDir returns the default configuration directory.
func GetDefaultConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "teledrop")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetDefaultConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetDefaultDataDir returns the default data directory for the SQLite
// database and local blob storage.
func GetDefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, _ := os.UserHomeDir()
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "teledrop")
}

// GetDefaultConfig returns a configuration populated entirely from defaults.
// The JWT secret and operator password hash are intentionally empty: Load
// refuses to start a server without them, and `teledrop init` fills them in.
func GetDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Server: ServerConfig{
			ListenAddr:      DefaultListenAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
			MetricsEnabled:  true,
		},
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
			SQLite: store.SQLiteConfig{
				Path: filepath.Join(GetDefaultDataDir(), "teledrop.db"),
			},
		},
		Storage: StorageConfig{
			Backend:     StorageBackendLocal,
			Root:        filepath.Join(GetDefaultDataDir(), "blobs"),
			SweepMaxAge: DefaultSweepMaxAge,
		},
		Upload: UploadConfig{
			MaxSize:       0,
			ChunkSize:     blob.DefaultChunkSize,
			SlugAlphabet:  DefaultSlugAlphabet,
			SlugLength:    DefaultSlugLength,
			ReservedSlugs: DefaultReservedSlugs,
		},
		Auth: AuthConfig{
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 7 * 24 * time.Hour,
			OperatorUsername:     "operator",
			CookieName:           DefaultCookieName,
		},
	}
}

// ApplyDefaults fills in missing values without overriding explicit ones.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	cfg.Database.ApplyDefaults()

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendLocal
	}
	if cfg.Storage.Backend == StorageBackendLocal && cfg.Storage.Root == "" {
		cfg.Storage.Root = filepath.Join(GetDefaultDataDir(), "blobs")
	}
	if cfg.Storage.SweepMaxAge == 0 {
		cfg.Storage.SweepMaxAge = DefaultSweepMaxAge
	}

	if cfg.Upload.ChunkSize == 0 {
		cfg.Upload.ChunkSize = blob.DefaultChunkSize
	}
	if cfg.Upload.SlugAlphabet == "" {
		cfg.Upload.SlugAlphabet = DefaultSlugAlphabet
	}
	if cfg.Upload.SlugLength == 0 {
		cfg.Upload.SlugLength = DefaultSlugLength
	}
	if cfg.Upload.ReservedSlugs == nil {
		cfg.Upload.ReservedSlugs = DefaultReservedSlugs
	}

	if cfg.Auth.AccessTokenDuration == 0 {
		cfg.Auth.AccessTokenDuration = 15 * time.Minute
	}
	if cfg.Auth.RefreshTokenDuration == 0 {
		cfg.Auth.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if cfg.Auth.OperatorUsername == "" {
		cfg.Auth.OperatorUsername = "operator"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = DefaultCookieName
	}
}

// Validate checks the assembled configuration.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return err
	}

	if cfg.Storage.Backend == StorageBackendS3 && cfg.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
	}
	if cfg.Storage.Backend == StorageBackendLocal && cfg.Storage.Root == "" {
		return fmt.Errorf("storage.root is required for the local backend")
	}

	return nil
}
