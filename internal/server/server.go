// Package server exposes the market engine over a JSON HTTP API. Mutating
// endpoints identify the caller through the X-Caller-Key header; the
// engine's capability table does the actual authorization.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/x3na-dev/x3na/internal/market"
	"github.com/x3na-dev/x3na/internal/observability"
	"github.com/x3na-dev/x3na/internal/query"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr string
}

// Server is the HTTP API server for the market service.
type Server struct {
	engine     *market.Engine
	history    *query.Service
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer registers all routes and builds the middleware chain. history
// may be nil; the history and integrity routes are then not served.
func NewServer(cfg Config, engine *market.Engine, history *query.Service, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	s := &Server{engine: engine, history: history, log: log}

	mux := http.NewServeMux()

	// Health (no caller key).
	mux.HandleFunc("GET /healthz", health.LivenessHandler)
	mux.HandleFunc("GET /readyz", health.ReadinessHandler)

	// Operator round lifecycle.
	mux.HandleFunc("POST /api/rounds", requireCaller(s.handleStartRound))
	mux.HandleFunc("POST /api/rounds/{id}/lock", requireCaller(s.handleLockRound))
	mux.HandleFunc("POST /api/rounds/{id}/resolve", requireCaller(s.handleResolveRound))
	mux.HandleFunc("POST /api/rounds/{id}/settle", requireCaller(s.handleBatchSettle))
	mux.HandleFunc("POST /api/rounds/{id}/resolve-and-settle", requireCaller(s.handleResolveAndSettle))

	// Participant actions.
	mux.HandleFunc("POST /api/rounds/{id}/bets", requireCaller(s.handlePlaceBet))
	mux.HandleFunc("POST /api/claims", requireCaller(s.handleClaim))
	mux.HandleFunc("POST /api/referrals", requireCaller(s.handleRegisterReferral))

	// Admin.
	mux.HandleFunc("POST /api/admin/suspend", requireCaller(s.handleSuspend))
	mux.HandleFunc("POST /api/admin/resume", requireCaller(s.handleResume))
	mux.HandleFunc("POST /api/admin/emergency-withdraw", requireCaller(s.handleEmergencyWithdraw))
	mux.HandleFunc("PUT /api/admin/params", requireCaller(s.handleUpdateParams))

	// Queries.
	mux.HandleFunc("GET /api/rounds/{id}", s.handleGetRound)
	mux.HandleFunc("GET /api/rounds/{id}/wagers/{participant}", s.handleGetWager)
	mux.HandleFunc("GET /api/rounds/{id}/participants", s.handleListParticipants)
	mux.HandleFunc("GET /api/rounds/{id}/claimable/{participant}", s.handleClaimable)
	mux.HandleFunc("GET /api/params", s.handleGetParams)

	// Durable history, served straight from Postgres.
	if history != nil {
		mux.HandleFunc("GET /api/rounds", s.handleListRounds)
		mux.HandleFunc("GET /api/rounds/{id}/events", s.handleRoundEvents)
		mux.HandleFunc("GET /api/participants/{participant}/wagers", s.handleParticipantWagers)
		mux.HandleFunc("GET /api/admin/integrity", requireCaller(s.handleIntegrity))
	}

	var h http.Handler = mux
	h = requestLogging(log, metrics)(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until an error or shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
