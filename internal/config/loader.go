package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEFLOW_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			// Missing file runs on defaults plus env overrides.
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEFLOW_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Server
	setBool(&cfg.Server.Enabled, "TRADEFLOW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEFLOW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEFLOW_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADEFLOW_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRADEFLOW_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "TRADEFLOW_SERVER_RATE_LIMIT_WINDOW")

	// Redis
	setBool(&cfg.Redis.Enabled, "TRADEFLOW_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEFLOW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEFLOW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEFLOW_REDIS_TLS_ENABLED")

	// Engine
	setDuration(&cfg.Engine.AggregateInterval, "TRADEFLOW_ENGINE_AGGREGATE_INTERVAL")
	setDuration(&cfg.Engine.SimInterval, "TRADEFLOW_ENGINE_SIM_INTERVAL")
	setFloat64(&cfg.Engine.DefaultMid, "TRADEFLOW_ENGINE_DEFAULT_MID")
	setInt(&cfg.Engine.BollPeriod, "TRADEFLOW_ENGINE_BOLL_PERIOD")
	setFloat64(&cfg.Engine.BollMult, "TRADEFLOW_ENGINE_BOLL_MULT")
	setFloat64(&cfg.Engine.BigWallUSD, "TRADEFLOW_ENGINE_BIG_WALL_USD")

	// Rates
	setBool(&cfg.Rates.RefreshEnabled, "TRADEFLOW_RATES_REFRESH_ENABLED")
	setDuration(&cfg.Rates.RefreshInterval, "TRADEFLOW_RATES_REFRESH_INTERVAL")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "TRADEFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEFLOW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEFLOW_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.LogLevel, "TRADEFLOW_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
