// Package api provides the HTTP API for the subtrack service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Server is the HTTP API server.
type Server struct {
	mux           *http.ServeMux
	handler       http.Handler
	server        *http.Server
	logger        *slog.Logger
	auth          *AuthHandler
	plans         *PlanHandler
	subscriptions *SubscriptionHandler
	verifier      TokenVerifier
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server.
func NewServer(
	cfg ServerConfig,
	auth *AuthHandler,
	plans *PlanHandler,
	subscriptions *SubscriptionHandler,
	verifier TokenVerifier,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:           mux,
		logger:        logger,
		auth:          auth,
		plans:         plans,
		subscriptions: subscriptions,
		verifier:      verifier,
	}

	s.registerRoutes()
	s.handler = withRequestContext(logger)(s.mux)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	authed := requireAuth(s.verifier, s.logger)

	// Health check
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Accounts
	s.mux.HandleFunc("POST /api/v1/auth/register", s.auth.Register)
	s.mux.HandleFunc("POST /api/v1/auth/login", s.auth.Login)
	s.mux.HandleFunc("GET /api/v1/users/me", authed(s.auth.Me))

	// Plan catalog
	s.mux.HandleFunc("GET /api/v1/plans", s.plans.List)
	s.mux.HandleFunc("GET /api/v1/plans/{planID}", s.plans.Get)
	s.mux.HandleFunc("POST /api/v1/plans", authed(s.plans.Create))
	s.mux.HandleFunc("PATCH /api/v1/plans/{planID}", authed(s.plans.Update))
	s.mux.HandleFunc("DELETE /api/v1/plans/{planID}", authed(s.plans.Deactivate))

	// Subscriptions
	s.mux.HandleFunc("POST /api/v1/subscriptions", authed(s.subscriptions.Create))
	s.mux.HandleFunc("GET /api/v1/subscriptions/current", authed(s.subscriptions.GetCurrent))
	s.mux.HandleFunc("GET /api/v1/subscriptions/{subscriptionID}", authed(s.subscriptions.Get))
	s.mux.HandleFunc("PATCH /api/v1/subscriptions/current", authed(s.subscriptions.UpdateCurrent))
	s.mux.HandleFunc("PATCH /api/v1/subscriptions/{subscriptionID}", authed(s.subscriptions.Update))
	s.mux.HandleFunc("POST /api/v1/subscriptions/{subscriptionID}/cancel", authed(s.subscriptions.Cancel))
	s.mux.HandleFunc("POST /api/v1/subscriptions/current/cancel", authed(s.subscriptions.CancelCurrent))
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
