// Package server exposes the HTTP and WebSocket API over the book engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/server/handler"
	"github.com/gatslabs/tradeflow/internal/server/middleware"
	"github.com/gatslabs/tradeflow/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter enables per-client request limiting when non-nil.
	RateLimiter    domain.RateLimiter
	RateLimit      int
	RateLimitEvery time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Books  *handler.BookHandler
	Signal *handler.SignalHandler
	Rates  *handler.RatesHandler
	Status *handler.StatusHandler
}

// Server is the headless HTTP + WebSocket API over the order book engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (logging, CORS, auth, rate limit) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Tracked book endpoints.
	mux.HandleFunc("GET /api/books", handlers.Books.ListBooks)
	mux.HandleFunc("POST /api/books", handlers.Books.CreateBook)
	mux.HandleFunc("GET /api/books/{id}", handlers.Books.GetBook)
	mux.HandleFunc("PUT /api/books/{id}", handlers.Books.UpdateBook)
	mux.HandleFunc("DELETE /api/books/{id}", handlers.Books.DeleteBook)
	mux.HandleFunc("GET /api/books/{id}/series", handlers.Books.GetSeries)

	// Aggregate signal endpoints.
	mux.HandleFunc("GET /api/signal", handlers.Signal.GetSignal)
	mux.HandleFunc("GET /api/signal/history", handlers.Signal.GetHistory)
	mux.HandleFunc("GET /api/outlooks", handlers.Signal.GetOutlooks)
	mux.HandleFunc("GET /api/bands", handlers.Signal.GetBands)

	// Display rates.
	mux.HandleFunc("GET /api/rates", handlers.Rates.GetRates)

	// Backend status.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitEvery)(h)
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
