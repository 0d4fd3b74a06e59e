// Package config loads and validates the Teledrop server configuration from
// file, environment, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/store"
)

// Config represents the Teledrop configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TELEDROP_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the metadata store (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Storage selects and configures the blob store backend
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Upload bounds and tunes the create path
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Auth configures the operator identity and token issuance
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`

	// MetricsEnabled exposes Prometheus metrics at /metrics
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// StorageBackend selects the blob store implementation.
type StorageBackend string

const (
	StorageBackendLocal StorageBackend = "local"
	StorageBackendS3    StorageBackend = "s3"
)

// StorageConfig selects and configures the blob store backend.
type StorageConfig struct {
	// Backend is "local" or "s3"
	Backend StorageBackend `mapstructure:"backend" validate:"required,oneof=local s3" yaml:"backend"`

	// Root is the local filesystem storage root (local backend)
	Root string `mapstructure:"root" yaml:"root"`

	// S3 configures the object store (s3 backend)
	S3 S3Config `mapstructure:"s3" yaml:"s3"`

	// SweepMaxAge is how old a temp object must be before the startup
	// sweep removes it
	SweepMaxAge time.Duration `mapstructure:"sweep_max_age" yaml:"sweep_max_age"`
}

// S3Config mirrors the blob/s3 package configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// UploadConfig bounds and tunes the create path.
type UploadConfig struct {
	// MaxSize is the maximum upload size in bytes; 0 means unlimited
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size"`

	// ChunkSize is the streaming chunk size in bytes
	ChunkSize int `mapstructure:"chunk_size" validate:"gt=0" yaml:"chunk_size"`

	// Deadline aborts long-running uploads; 0 means none
	Deadline time.Duration `mapstructure:"deadline" yaml:"deadline"`

	// SlugAlphabet is the character set for auto-generated slugs
	SlugAlphabet string `mapstructure:"slug_alphabet" validate:"required" yaml:"slug_alphabet"`

	// SlugLength is the length of auto-generated slugs
	SlugLength int `mapstructure:"slug_length" validate:"gte=4,lte=64" yaml:"slug_length"`

	// ReservedSlugs can never be claimed by a drop (route segments etc.)
	ReservedSlugs []string `mapstructure:"reserved_slugs" yaml:"reserved_slugs"`

	// FavoriteTouch restores the legacy behavior of bumping updated_at on
	// a favorite toggle
	FavoriteTouch bool `mapstructure:"favorite_touch" yaml:"favorite_touch"`

	// Argon2 tunes the passphrase verifier
	Argon2 access.Argon2Params `mapstructure:"argon2" yaml:"argon2"`
}

// AuthConfig configures the operator identity and token issuance.
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. At least 32 characters.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32" yaml:"jwt_secret"`

	// AccessTokenDuration is the access token lifetime
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`

	// RefreshTokenDuration is the refresh token lifetime
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" yaml:"refresh_token_duration"`

	// OperatorUsername is the single configured operator identity
	OperatorUsername string `mapstructure:"operator_username" validate:"required" yaml:"operator_username"`

	// OperatorPasswordHash is the bcrypt hash of the operator password
	OperatorPasswordHash string `mapstructure:"operator_password_hash" validate:"required" yaml:"operator_password_hash"`

	// CookieName carries the access token for browser sessions
	CookieName string `mapstructure:"cookie_name" yaml:"cookie_name"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		ApplyDefaults(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  teledrop init\n\n"+
				"Or specify a custom config file:\n"+
				"  teledrop <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  teledrop init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML with restricted permissions;
// the file carries the JWT secret and the operator password hash.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the TELEDROP_ prefix, for example
// TELEDROP_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TELEDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetDefaultConfigDir())
	}
}

// readConfigFile reads the config file if present. Returns whether a file
// was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}
