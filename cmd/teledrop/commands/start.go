package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teledrop/teledrop/internal/api"
	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/blob"
	bloblocal "github.com/teledrop/teledrop/pkg/blob/local"
	blobs3 "github.com/teledrop/teledrop/pkg/blob/s3"
	"github.com/teledrop/teledrop/pkg/config"
	"github.com/teledrop/teledrop/pkg/drop"
	"github.com/teledrop/teledrop/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Teledrop server",
	Long: `Start the Teledrop server.

The server loads its configuration from the default location or the path
given with --config, sweeps stale temp blobs left by crashed uploads, and
serves the API until interrupted.

Examples:
  # Start with default config location
  teledrop start

  # Start with custom config
  teledrop start --config /etc/teledrop/config.yaml

  # Override config with environment variables
  TELEDROP_LOGGING_LEVEL=DEBUG teledrop start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close metadata store", "error", err)
		}
	}()
	logger.Info("metadata store ready", "type", cfg.Database.Type)

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("blob store ready", "backend", cfg.Storage.Backend)

	// Reclaim temp objects from crashed uploads before serving traffic.
	if sweeper, ok := blobs.(blob.Sweeper); ok {
		removed, err := sweeper.SweepTemp(ctx, cfg.Storage.SweepMaxAge)
		if err != nil {
			logger.Warn("startup sweep failed", "error", err)
		} else if removed > 0 {
			logger.Info("startup sweep removed stale temp blobs", "count", removed)
		}
	}

	verifier := access.NewVerifier(cfg.Upload.Argon2)
	drops := drop.NewService(st, blobs, verifier, drop.Options{
		MaxUploadSize: cfg.Upload.MaxSize,
		ChunkSize:     cfg.Upload.ChunkSize,
		Deadline:      cfg.Upload.Deadline,
		SlugAlphabet:  cfg.Upload.SlugAlphabet,
		SlugLength:    cfg.Upload.SlugLength,
		ReservedSlugs: cfg.Upload.ReservedSlugs,
		FavoriteTouch: cfg.Upload.FavoriteTouch,
	})

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               cfg.Auth.JWTSecret,
		AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
		RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	authService := auth.NewService(jwtService, st, cfg.Auth.OperatorUsername, cfg.Auth.OperatorPasswordHash)

	router := api.NewRouter(api.RouterConfig{
		Store:   st,
		Drops:   drops,
		Auth:    authService,
		Cookie:  cfg.Auth.CookieName,
		Metrics: cfg.Server.MetricsEnabled,
	})
	server := api.NewServer(api.ServerConfig{
		ListenAddr:      cfg.Server.ListenAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			return err
		}
	}
	return nil
}

// newBlobStore builds the configured blob store backend.
func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendLocal:
		blobs, err := bloblocal.New(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to open local blob store: %w", err)
		}
		return blobs, nil

	case config.StorageBackendS3:
		blobs, err := blobs3.New(ctx, blobs3.Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			Prefix:          cfg.Storage.S3.Prefix,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 blob store: %w", err)
		}
		return blobs, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
