// Package rest exposes the workflow engine over HTTP: definition
// management, starting/cancelling executions, checkpoints, and the
// dead-letter queue. It builds on net/http's method-pattern ServeMux, the
// same router-free approach the teacher lineage used.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/mbflow/internal/persistence"
)

// ServerConfig tunes cross-cutting HTTP behavior.
type ServerConfig struct {
	EnableCORS      bool
	EnableRateLimit bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	APIKeys         []string
	JWTSecret       string
}

// Server is the REST API surface over a Registry and a checkpoint Store.
type Server struct {
	registry *Registry
	store    persistence.Store
	logger   zerolog.Logger
	mux      *http.ServeMux
	handler  http.Handler
}

// NewServer wires routes and middleware over registry and store.
func NewServer(registry *Registry, store persistence.Store, log zerolog.Logger, cfg ServerConfig) *Server {
	s := &Server{
		registry: registry,
		store:    store,
		logger:   log,
		mux:      http.NewServeMux(),
	}
	s.routes()

	var h http.Handler = s.mux
	h = contentTypeMiddleware(h)
	auth := newAuthMiddleware(cfg.APIKeys, cfg.JWTSecret)
	h = auth.middleware(h)
	if cfg.EnableRateLimit {
		rl := newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		h = rl.middleware(h)
	}
	if cfg.EnableCORS {
		h = corsMiddleware(h)
	}
	h = recoveryMiddleware(log, h)
	h = loggingMiddleware(log, h)
	s.handler = h

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	s.mux.HandleFunc("GET /api/v1/workflows", s.handleListWorkflows)
	s.mux.HandleFunc("POST /api/v1/workflows", s.handleCreateWorkflow)
	s.mux.HandleFunc("GET /api/v1/workflows/{id}", s.handleGetWorkflow)

	s.mux.HandleFunc("POST /api/v1/executions", s.handleStartExecution)
	s.mux.HandleFunc("GET /api/v1/executions", s.handleListExecutions)
	s.mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGetExecution)
	s.mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.handleCancelExecution)
	s.mux.HandleFunc("GET /api/v1/executions/{id}/events", s.handleExecutionEvents)
	s.mux.HandleFunc("GET /api/v1/executions/{id}/dead-letters", s.handleDeadLetters)

	s.mux.HandleFunc("POST /api/v1/checkpoints/{id}", s.handleSaveCheckpoint)
	s.mux.HandleFunc("GET /api/v1/checkpoints/{id}", s.handleLoadCheckpoint)
	s.mux.HandleFunc("GET /api/v1/checkpoints", s.handleListCheckpoints)
	s.mux.HandleFunc("DELETE /api/v1/checkpoints/{id}", s.handleDeleteCheckpoint)
	s.mux.HandleFunc("POST /api/v1/checkpoints/{id}/resume", s.handleResumeCheckpoint)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]string{"status": "ready"}, http.StatusOK)
}

func (s *Server) respondJSON(w http.ResponseWriter, v any, status int) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	s.respondJSON(w, map[string]string{"error": message}, status)
}

func (s *Server) requestContext(r *http.Request) context.Context {
	return r.Context()
}
