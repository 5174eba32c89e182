// Package web provides the HTTP server and handlers for the emissions
// query API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plumescan/emissions/internal/config"
	"github.com/plumescan/emissions/internal/emissions"
	"github.com/plumescan/emissions/internal/web/middleware"
)

// Lister serves pages of emission readings. *store.Store satisfies it.
type Lister interface {
	ListEmissions(ctx context.Context, p emissions.ListParams) (*emissions.Page, error)
}

// Pinger reports backing-store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the emissions API.
type Server struct {
	lister   Lister
	pinger   Pinger
	router   *chi.Mux
	server   *http.Server
	cfg      config.ServerConfig
	defaults emissions.QueryDefaults
}

// NewServer wires the router, middleware chain, and routes.
func NewServer(lister Lister, pinger Pinger, cfg *config.Config) *Server {
	s := &Server{
		lister: lister,
		pinger: pinger,
		router: chi.NewRouter(),
		cfg:    cfg.Server,
		defaults: emissions.QueryDefaults{
			Limit:         cfg.Query.DefaultLimit,
			MaxLimit:      cfg.Query.MaxLimit,
			ConfidenceMin: cfg.Query.DefaultConfidenceMin,
		},
	}
	s.setupMiddleware(cfg)
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(cfg *config.Config) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if cfg.Rate.Enabled {
		limiter := newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/emissions", s.handleListEmissions)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start begins listening for HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
