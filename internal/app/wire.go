package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/cache/redis"
	"github.com/gatslabs/tradeflow/internal/config"
	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/feed"
	"github.com/gatslabs/tradeflow/internal/notify"
	"github.com/gatslabs/tradeflow/internal/rates"
)

// Dependencies bundles everything the application needs to run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store   *book.Store
	Manager *feed.Manager
	Rates   *rates.Service

	// Redis-backed extras; nil when Redis is disabled.
	BookCache   domain.BookCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store := book.NewStore(logger)

	deps := &Dependencies{
		Store: store,
		Manager: feed.NewManager(store, feed.ManagerConfig{
			SimInterval: cfg.Engine.SimInterval.Duration,
			DefaultMid:  cfg.Engine.DefaultMid,
		}, logger),
		Rates: rates.NewService(cfg.Rates.RefreshInterval.Duration, logger),
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bookCache := redis.NewBookCache(redisClient)
		deps.BookCache = bookCache
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)

		// Surface the last aggregate from a previous run, if any.
		if state, sig, err := bookCache.GetAggregate(ctx); err == nil {
			logger.Info("resuming with cached aggregate",
				slog.String("color", string(sig.Color)),
				slog.Time("as_of", state.Timestamp),
			)
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("cached aggregate read failed", slog.String("error", err.Error()))
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
