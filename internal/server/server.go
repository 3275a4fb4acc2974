// Package server hosts the HTTP and websocket API of the market daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/server/handler"
	"github.com/afrifutures/marketd/internal/server/middleware"
	"github.com/afrifutures/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // guards operator routes; empty disables
	RateLimit       int    // requests per RateLimitWindow per client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers. Prices and Archives are optional.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Staking    *handler.StakingHandler
	Settlement *handler.SettlementHandler
	Prices     *handler.PriceHandler
	Archives   *handler.ArchiveHandler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      Routes(cfg, handlers, hub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes returns the fully wrapped handler. It is exported for tests.
func Routes(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	operator := middleware.Auth(cfg.APIKey)

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/markets", h.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/expired", h.Markets.ListExpired)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/stats", h.Markets.Stats)

	mux.HandleFunc("GET /api/markets/{id}/odds", h.Staking.Odds)
	mux.HandleFunc("GET /api/markets/{id}/preview", h.Staking.Preview)
	mux.HandleFunc("POST /api/markets/{id}/stakes", h.Staking.Stake)
	mux.HandleFunc("GET /api/markets/{id}/stakes", h.Staking.ListStakes)
	mux.HandleFunc("GET /api/positions", h.Staking.ListPositions)

	mux.Handle("POST /api/markets/{id}/resolve", operator(http.HandlerFunc(h.Settlement.Resolve)))
	mux.HandleFunc("POST /api/markets/{id}/claim", h.Settlement.Claim)

	if h.Prices != nil {
		mux.HandleFunc("GET /api/prices/{commodity}", h.Prices.Latest)
	}
	if h.Archives != nil {
		mux.Handle("GET /api/archives", operator(http.HandlerFunc(h.Archives.List)))
		mux.Handle("GET /api/archives/{kind}/{month}", operator(http.HandlerFunc(h.Archives.Download)))
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(out)
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
