// Package app provides the top-level application lifecycle for the tradeflow
// daemon. It wires together the book store, feed manager, aggregator, rates,
// server, and notifications, and runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatslabs/tradeflow/internal/cache/redis"
	"github.com/gatslabs/tradeflow/internal/config"
	"github.com/gatslabs/tradeflow/internal/engine"
	"github.com/gatslabs/tradeflow/internal/server"
	"github.com/gatslabs/tradeflow/internal/server/handler"
	"github.com/gatslabs/tradeflow/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the feed, aggregation, and server
// goroutines, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("books", len(a.cfg.Books)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	initial, err := a.cfg.BookConfigs()
	if err != nil {
		return fmt.Errorf("app: initial books: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub.
	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	// Aggregator with the publisher as its tick sink.
	publisher := NewPublisher(deps, hub, a.cfg.Engine.BigWallUSD, a.logger)
	aggregator := engine.NewAggregator(deps.Store, a.cfg.Engine.AggregateInterval.Duration, publisher.OnState, a.logger)
	g.Go(func() error {
		return aggregator.Run(ctx)
	})

	// Feed manager with the startup books.
	g.Go(func() error {
		return deps.Manager.Run(ctx, initial)
	})

	// Background currency rate refresh.
	if a.cfg.Rates.RefreshEnabled {
		g.Go(func() error {
			return deps.Rates.Run(ctx)
		})
	}

	// HTTP server.
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, aggregator, hub)
	}

	return g.Wait()
}

// startHTTPServer registers all REST handlers plus the WebSocket hub and
// adds the serve/shutdown pair to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, aggregator *engine.Aggregator, hub *ws.Hub) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Books:  handler.NewBookHandler(deps.Manager, deps.Store, deps.Rates, a.cfg.Engine.BigWallUSD, a.logger),
		Signal: handler.NewSignalHandler(aggregator, deps.SignalBus, redis.StreamSignals, a.cfg.Engine.BollPeriod, a.cfg.Engine.BollMult, a.logger),
		Rates:  handler.NewRatesHandler(deps.Rates),
		Status: handler.NewStatusHandler(deps.Manager, time.Now().UTC()),
	}

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RateLimiter:    deps.RateLimiter,
		RateLimit:      a.cfg.Server.RateLimit,
		RateLimitEvery: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
