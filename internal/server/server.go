// Package server exposes the HTTP and WebSocket API of the fee pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/server/handler"
	"github.com/degenflap/feeflow/internal/server/middleware"
	"github.com/degenflap/feeflow/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string // if empty, admin endpoints are not registered
}

// apiRateLimit caps requests per client IP across the whole API surface.
const (
	apiRateLimit  = 300
	apiRateWindow = time.Minute
)

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	State   *handler.StateHandler
	Scores  *handler.ScoreHandler
	Payouts *handler.PayoutHandler
}

// Server is the headless HTTP + WebSocket API server for the fee pipeline.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, per-IP rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable the API rate limit; wsHub
// may be nil to disable the WebSocket endpoint. Admin routes only exist when
// an admin API key is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)

	// Game state and event history.
	mux.HandleFunc("GET /v1/state", handlers.State.GetState)

	// Score submission and leaderboard.
	mux.HandleFunc("POST /v1/scores", handlers.Scores.SubmitScore)
	mux.HandleFunc("GET /v1/leaderboard", handlers.Scores.Leaderboard)

	// Payout history.
	mux.HandleFunc("GET /v1/payouts", handlers.Payouts.ListPayouts)

	// Admin endpoints, key-gated. An unset key leaves them unregistered
	// rather than open.
	if cfg.AdminAPIKey != "" {
		adminAuth := middleware.Auth(cfg.AdminAPIKey)
		mux.Handle("POST /v1/admin/trigger-payout", adminAuth(http.HandlerFunc(handlers.Payouts.TriggerCycle)))
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil {
		h = middleware.RateLimit(limiter, apiRateLimit, apiRateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
