// Package config defines the top-level configuration for the tradeflow
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEFLOW_* environment
// variables.
type Config struct {
	Server   ServerConfig `toml:"server"`
	Redis    RedisConfig  `toml:"redis"`
	Engine   EngineConfig `toml:"engine"`
	Rates    RatesConfig  `toml:"rates"`
	Notify   NotifyConfig `toml:"notify"`
	Books    []BookEntry  `toml:"books"`
	LogLevel string       `toml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit is requests per window per client IP. Zero disables
	// limiting; a limiter also requires Redis to be enabled.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the engine keeps everything in memory.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// EngineConfig holds aggregation and simulation parameters.
type EngineConfig struct {
	AggregateInterval duration `toml:"aggregate_interval"`
	SimInterval       duration `toml:"sim_interval"`
	DefaultMid        float64  `toml:"default_mid"`
	BollPeriod        int      `toml:"boll_period"`
	BollMult          float64  `toml:"boll_mult"`
	BigWallUSD        float64  `toml:"big_wall_usd"`
}

// RatesConfig controls the background currency rate refresh.
type RatesConfig struct {
	RefreshEnabled  bool     `toml:"refresh_enabled"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// BookEntry is a book tracked at startup.
type BookEntry struct {
	Exchange       string  `toml:"exchange"`
	Symbol         string  `toml:"symbol"`
	Depth          int     `toml:"depth"`
	MinNotionalUSD float64 `toml:"min_notional_usd"`
}

// duration wraps time.Duration for TOML decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "1s" or "250ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitWindow: duration{time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Engine: EngineConfig{
			AggregateInterval: duration{time.Second},
			SimInterval:       duration{250 * time.Millisecond},
			DefaultMid:        50000,
			BollPeriod:        20,
			BollMult:          2,
			BigWallUSD:        50000,
		},
		Rates: RatesConfig{
			RefreshEnabled:  false,
			RefreshInterval: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"signal_flip", "feed_degraded"},
		},
		Books: []BookEntry{
			{Exchange: "Binance", Symbol: "BTC"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Engine.AggregateInterval.Duration <= 0 {
		errs = append(errs, "engine: aggregate_interval must be > 0")
	}
	if c.Engine.SimInterval.Duration <= 0 {
		errs = append(errs, "engine: sim_interval must be > 0")
	}
	if c.Engine.DefaultMid <= 0 {
		errs = append(errs, "engine: default_mid must be > 0")
	}
	if c.Engine.BollPeriod < 2 {
		errs = append(errs, "engine: boll_period must be >= 2")
	}
	if c.Engine.BollMult <= 0 {
		errs = append(errs, "engine: boll_mult must be > 0")
	}
	if c.Engine.BigWallUSD < 0 {
		errs = append(errs, "engine: big_wall_usd must be >= 0")
	}

	if c.Rates.RefreshEnabled && c.Rates.RefreshInterval.Duration <= 0 {
		errs = append(errs, "rates: refresh_interval must be > 0 when refresh is enabled")
	}

	if len(c.Books) > domain.MaxActiveBooks {
		errs = append(errs, fmt.Sprintf("books: at most %d books may be configured, got %d", domain.MaxActiveBooks, len(c.Books)))
	}
	for i, b := range c.Books {
		if _, err := domain.ParseExchange(b.Exchange); err != nil {
			errs = append(errs, fmt.Sprintf("books[%d]: %v", i, err))
		}
		if _, err := domain.ParseSymbol(b.Symbol); err != nil {
			errs = append(errs, fmt.Sprintf("books[%d]: %v", i, err))
		}
		if b.Depth < 0 {
			errs = append(errs, fmt.Sprintf("books[%d]: depth must be >= 0", i))
		}
		if b.MinNotionalUSD < 0 {
			errs = append(errs, fmt.Sprintf("books[%d]: min_notional_usd must be >= 0", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BookConfigs converts the configured book entries into clamped runtime
// configs. IDs are left empty; the feed manager assigns them.
func (c *Config) BookConfigs() ([]domain.BookConfig, error) {
	out := make([]domain.BookConfig, 0, len(c.Books))
	for i, b := range c.Books {
		exchange, err := domain.ParseExchange(b.Exchange)
		if err != nil {
			return nil, fmt.Errorf("config: books[%d]: %w", i, err)
		}
		symbol, err := domain.ParseSymbol(b.Symbol)
		if err != nil {
			return nil, fmt.Errorf("config: books[%d]: %w", i, err)
		}
		cfg := domain.BookConfig{
			Exchange:       exchange,
			Symbol:         symbol,
			Depth:          b.Depth,
			MinNotionalUSD: b.MinNotionalUSD,
		}
		cfg.Clamp()
		out = append(out, cfg)
	}
	return out, nil
}
