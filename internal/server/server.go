// Package server exposes the quote view and stream control over HTTP and
// WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/server/handler"
	"github.com/alanyoungcy/metaquote/internal/server/middleware"
	"github.com/alanyoungcy/metaquote/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter limits mutating requests to StreamChangeLimit per minute per
	// client. Nil disables the limit.
	RateLimiter       domain.RateLimiter
	StreamChangeLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Quotes      *handler.QuoteHandler
	Stream      *handler.StreamHandler
	Aggregators *handler.AggregatorHandler
}

// Server is the HTTP + WebSocket API server for the quote stream.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth, rate limit) and attaches the
// WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     NewHandler(cfg, handlers, wsHub, logger),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /ws connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed and wrapped handler tree.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Collaborator view.
	mux.HandleFunc("GET /api/quotes", handlers.Quotes.GetView)
	mux.HandleFunc("GET /api/quotes/latest", handlers.Quotes.GetLatest)
	mux.HandleFunc("GET /api/quotes/history", handlers.Quotes.GetHistory)

	// Subscription control.
	mux.HandleFunc("GET /api/stream", handlers.Stream.GetStream)
	mux.HandleFunc("PUT /api/stream", handlers.Stream.PutStream)
	mux.HandleFunc("POST /api/stream/reconnect", handlers.Stream.Reconnect)
	mux.HandleFunc("DELETE /api/stream", handlers.Stream.DeleteStream)
	mux.HandleFunc("GET /api/stream/events", handlers.Stream.ListEvents)

	// Provider directory.
	mux.HandleFunc("GET /api/aggregators", handlers.Aggregators.ListAggregators)
	mux.HandleFunc("POST /api/aggregators/refresh", handlers.Aggregators.Refresh)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: CORS, Logging, Auth, RateLimit.
	var h http.Handler = mux
	if cfg.RateLimiter != nil && cfg.StreamChangeLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.StreamChangeLimit, time.Minute, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
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
