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
// built-in defaults, applies ESARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ESARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.PollInterval, "ESARB_ENGINE_POLL_INTERVAL")
	setDuration(&cfg.Engine.DiscoveryInterval, "ESARB_ENGINE_DISCOVERY_INTERVAL")
	setDuration(&cfg.Engine.LinkRefreshInterval, "ESARB_ENGINE_LINK_REFRESH_INTERVAL")
	setDuration(&cfg.Engine.DrainTimeout, "ESARB_ENGINE_DRAIN_TIMEOUT")
	setFloat64(&cfg.Engine.ExitSlippage, "ESARB_ENGINE_EXIT_SLIPPAGE")
	setBool(&cfg.Engine.PaperTrading, "ESARB_ENGINE_PAPER_TRADING")

	// ── Risk ──
	setFloat64(&cfg.Risk.InitialCapital, "ESARB_RISK_INITIAL_CAPITAL")
	setFloat64(&cfg.Risk.MaxPositionFrac, "ESARB_RISK_MAX_POSITION_FRAC")
	setFloat64(&cfg.Risk.MaxExposureFrac, "ESARB_RISK_MAX_EXPOSURE_FRAC")
	setInt(&cfg.Risk.MaxConcurrent, "ESARB_RISK_MAX_CONCURRENT")
	setFloat64(&cfg.Risk.DailyLossFrac, "ESARB_RISK_DAILY_LOSS_FRAC")
	setFloat64(&cfg.Risk.MinMatchConfidence, "ESARB_RISK_MIN_MATCH_CONFIDENCE")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinEdge, "ESARB_DETECTOR_MIN_EDGE")
	setFloat64(&cfg.Detector.MaxSlippage, "ESARB_DETECTOR_MAX_SLIPPAGE")

	// ── Position ──
	setFloat64(&cfg.Position.StopLossFrac, "ESARB_POSITION_STOP_LOSS_FRAC")
	setFloat64(&cfg.Position.TakeProfitFrac, "ESARB_POSITION_TAKE_PROFIT_FRAC")
	setFloat64(&cfg.Position.FeeRate, "ESARB_POSITION_FEE_RATE")

	// ── Order ──
	setInt(&cfg.Order.MaxRetries, "ESARB_ORDER_MAX_RETRIES")
	setDuration(&cfg.Order.RetryBase, "ESARB_ORDER_RETRY_BASE")
	setDuration(&cfg.Order.FillTimeout, "ESARB_ORDER_FILL_TIMEOUT")
	setDuration(&cfg.Order.PollInterval, "ESARB_ORDER_POLL_INTERVAL")
	setStr(&cfg.Order.IdempotencySecret, "ESARB_ORDER_IDEMPOTENCY_SECRET")

	// ── Telemetry ──
	setStr(&cfg.Telemetry.BaseURL, "ESARB_TELEMETRY_BASE_URL")
	setStr(&cfg.Telemetry.Token, "ESARB_TELEMETRY_TOKEN")
	setStringSlice(&cfg.Telemetry.Games, "ESARB_TELEMETRY_GAMES")

	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "ESARB_VENUE_BASE_URL")
	setStr(&cfg.Venue.ApiKey, "ESARB_VENUE_API_KEY")
	setStr(&cfg.Venue.ApiSecret, "ESARB_VENUE_API_SECRET")
	setStr(&cfg.Venue.ApiPassphrase, "ESARB_VENUE_API_PASSPHRASE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ESARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "ESARB_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ESARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ESARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ESARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ESARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ESARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ESARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ESARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ESARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ESARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ESARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ESARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ESARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ESARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ESARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ESARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ESARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ESARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "ESARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ESARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ESARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ESARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ESARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ESARB_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ESARB_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "ESARB_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ESARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ESARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ESARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ESARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ESARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ESARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ESARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ESARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ESARB_MODE")
	setStr(&cfg.LogLevel, "ESARB_LOG_LEVEL")
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
