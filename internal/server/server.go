package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/server/handler"
	"github.com/alanyoungcy/esportsarb/internal/server/middleware"
	"github.com/alanyoungcy/esportsarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string             // if empty, authentication is disabled
	RateLimiter domain.RateLimiter // if nil, per-client rate limiting is disabled
}

// Per-client API rate limit applied when a RateLimiter is configured.
const (
	apiRateLimit  = 120
	apiRateWindow = time.Minute
)

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
	Orders    *handler.OrderHandler
	Trades    *handler.TradeHandler
	Audit     *handler.AuditHandler
	Archive   *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server for the arbitrage engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Engine status.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.ListHistory)

	// Order endpoints. Read-only: orders are placed and cancelled by the
	// engine, never over the API.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)

	// Trade and PnL endpoints.
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/trades/pnl", handlers.Trades.GetPnL)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)

	// Archive endpoints.
	mux.HandleFunc("GET /api/archive", handlers.Archive.ListArchives)
	mux.HandleFunc("POST /api/archive/trigger", handlers.Archive.TriggerArchive)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when a limiter is available.
	if cfg.RateLimiter != nil {
		h = middleware.RateLimit(cfg.RateLimiter, apiRateLimit, apiRateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
