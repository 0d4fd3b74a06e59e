// Package api assembles the Teledrop HTTP server: routing, middleware and
// lifecycle around the drop engine.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/teledrop/teledrop/internal/api/handlers"
	"github.com/teledrop/teledrop/internal/api/middleware"
	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/internal/metrics"
	"github.com/teledrop/teledrop/pkg/drop"
	"github.com/teledrop/teledrop/pkg/store"
)

// RouterConfig carries the collaborators the router wires together.
type RouterConfig struct {
	Store   *store.Store
	Drops   *drop.Service
	Auth    *auth.Service
	Cookie  string
	Metrics bool
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The middleware stack, in order: request ID, real IP extraction, request
// logging, panic recovery, caller resolution. No global timeout is applied
// because uploads and downloads legitimately outlive any fixed bound; the
// short-request routes get their own timeout below.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ResolveCaller(cfg.Auth, cfg.Cookie))

	healthHandler := handlers.NewHealthHandler(cfg.Store)
	contentHandler := handlers.NewContentHandler(cfg.Drops)
	authHandler := handlers.NewAuthHandler(cfg.Auth, cfg.Cookie)
	apiKeyHandler := handlers.NewAPIKeyHandler(cfg.Store)

	r.Route("/health", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Second))
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if cfg.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))
			r.Use(middleware.RequireAuth())
			apiKeyHandler.Routes(r)
		})

		r.Route("/content", contentHandler.Routes)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//
// It also feeds the request latency histogram, labeled by the matched chi
// route pattern so slugs do not explode the cardinality.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).
			Observe(duration.Seconds())

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
