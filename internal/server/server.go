// ABOUTME: HTTP server wiring routes for the chat and admin JSON API.
// ABOUTME: Maps service sentinel errors onto HTTP status codes.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/support-desk/internal/analytics"
	"github.com/2389/support-desk/internal/chat"
	"github.com/2389/support-desk/internal/metrics"
	"github.com/2389/support-desk/internal/prompt"
	"github.com/2389/support-desk/internal/store"
)

// Server serves the chat and admin API over HTTP.
type Server struct {
	chat       *chat.Service
	prompts    *prompt.Registry
	analytics  *analytics.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// Config wires the server's collaborators.
type Config struct {
	Addr        string
	Chat        *chat.Service
	Prompts     *prompt.Registry
	Analytics   *analytics.Service
	Metrics     *metrics.Metrics
	MetricsPath string
	Logger      *slog.Logger
}

// New creates the server and registers all routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		chat:      cfg.Chat,
		prompts:   cfg.Prompts,
		analytics: cfg.Analytics,
		logger:    logger.With("component", "server"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/chat/start", s.handleStart)
	mux.HandleFunc("POST /api/v1/chat/message", s.handleMessage)
	mux.HandleFunc("GET /api/v1/chat/history/{session_id}", s.handleHistory)
	mux.HandleFunc("GET /api/v1/chat/summary/{session_id}", s.handleSummary)
	mux.HandleFunc("POST /api/v1/chat/escalate", s.handleEscalate)
	mux.HandleFunc("POST /api/v1/chat/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/v1/chat/reopen", s.handleReopen)

	mux.HandleFunc("GET /api/v1/admin/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/v1/admin/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/v1/admin/customers", s.handleCustomers)
	mux.HandleFunc("GET /api/v1/admin/prompts", s.handleListPrompts)
	mux.HandleFunc("POST /api/v1/admin/prompts", s.handleCreatePrompt)
	mux.HandleFunc("PUT /api/v1/admin/prompts/{id}", s.handleUpdatePrompt)
	mux.HandleFunc("DELETE /api/v1/admin/prompts/{id}", s.handleDeletePrompt)

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, cfg.Metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendJSON writes a JSON response body with the given status.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendError maps service sentinel errors onto HTTP status codes. Anything
// unrecognized is logged and reported as an opaque 500.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput),
		errors.Is(err, prompt.ErrInvalidInput),
		errors.Is(err, analytics.ErrInvalidFilter):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrInvalidState):
		s.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrConflict):
		s.sendJSONError(w, http.StatusConflict, "conversation is busy, retry shortly")
	default:
		s.logger.Error("request failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
