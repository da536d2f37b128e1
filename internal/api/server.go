// Package api exposes the risk engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ruralpay/kite/internal/adaptive"
	"github.com/ruralpay/kite/internal/assess"
	"github.com/ruralpay/kite/internal/domain"
	"github.com/ruralpay/kite/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, assessor *assess.Assessor, selector *adaptive.Selector, profiles domain.ProfileStore, repo domain.Repository, cache domain.Cache, bus domain.EventBus, customEngine *rules.CustomEngine, version string) *Server {
	handler := NewHandler(assessor, selector, profiles, repo, cache, bus, customEngine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Risk assessment
	router.Post("/assess", handler.Assess)
	router.Post("/transactions", handler.SubmitAsync)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Decisions
	router.Get("/decisions", handler.ListDecisions)
	router.Get("/decisions/{id}", handler.GetDecision)

	// Profiles
	router.Get("/profiles/{id}", handler.GetProfile)

	// Adaptive authentication
	router.Post("/auth/level", handler.AuthLevel)
	router.Post("/auth/attempts", handler.RecordAuthAttempt)

	// Custom rule management
	router.Get("/rules", handler.ListRules)
	router.Post("/rules", handler.CreateRule)
	router.Post("/rules/reload", handler.ReloadRules)

	// Reporting
	router.Get("/stats", handler.Stats)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
