package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/teledrop/teledrop/internal/logger"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address to bind, e.g. "127.0.0.1:8080".
	ListenAddr string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server provides the Teledrop HTTP server with graceful shutdown.
type Server struct {
	server       *http.Server
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates the HTTP server around an assembled router.
// The server is created in a stopped state; call Start to serve.
func NewServer(config ServerConfig, handler http.Handler) *Server {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 15 * time.Second
	}

	server := &http.Server{
		Addr:    config.ListenAddr,
		Handler: handler,
		// No Read/WriteTimeout: uploads and downloads stream for as long as
		// the payload takes. Idle connections still get reaped.
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start serves requests and blocks until the context is cancelled or the
// listener fails. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", s.config.ListenAddr)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and safe to
// call concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			logger.Error("server shutdown error", "error", err)
		} else {
			logger.Info("server stopped gracefully")
		}
	})
	return shutdownErr
}
