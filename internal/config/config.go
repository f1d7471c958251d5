// Package config defines the top-level configuration for the esports
// arbitrage engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ESARB_* environment variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Risk      RiskConfig      `toml:"risk"`
	Detector  DetectorConfig  `toml:"detector"`
	Position  PositionConfig  `toml:"position"`
	Order     OrderConfig     `toml:"order"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Venue     VenueConfig     `toml:"venue"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds the orchestrator loop cadences.
type EngineConfig struct {
	PollInterval        duration `toml:"poll_interval"`
	DiscoveryInterval   duration `toml:"discovery_interval"`
	LinkRefreshInterval duration `toml:"link_refresh_interval"`
	DrainTimeout        duration `toml:"drain_timeout"`
	ExitSlippage        float64  `toml:"exit_slippage"`
	PaperTrading        bool     `toml:"paper_trading"`
}

// RiskConfig holds the capital ledger and pre-trade check parameters.
type RiskConfig struct {
	InitialCapital     float64 `toml:"initial_capital"`
	MaxPositionFrac    float64 `toml:"max_position_frac"`
	MaxExposureFrac    float64 `toml:"max_exposure_frac"`
	MaxConcurrent      int     `toml:"max_concurrent"`
	DailyLossFrac      float64 `toml:"daily_loss_frac"`
	MinMatchConfidence float64 `toml:"min_match_confidence"`
}

// DetectorConfig holds opportunity detection thresholds.
type DetectorConfig struct {
	MinEdge     float64 `toml:"min_edge"`
	MaxSlippage float64 `toml:"max_slippage"`
}

// PositionConfig holds exit thresholds and fee assumptions.
type PositionConfig struct {
	StopLossFrac   float64 `toml:"stop_loss_frac"`
	TakeProfitFrac float64 `toml:"take_profit_frac"`
	FeeRate        float64 `toml:"fee_rate"`
}

// OrderConfig holds order submission and fill-monitoring parameters.
type OrderConfig struct {
	MaxRetries        int      `toml:"max_retries"`
	RetryBase         duration `toml:"retry_base"`
	FillTimeout       duration `toml:"fill_timeout"`
	PollInterval      duration `toml:"poll_interval"`
	IdempotencySecret string   `toml:"idempotency_secret"`
}

// TelemetryConfig holds the live match data feed endpoint and credentials.
type TelemetryConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Games   []string `toml:"games"`
}

// VenueConfig holds the trading venue API endpoint and credentials.
type VenueConfig struct {
	BaseURL       string `toml:"base_url"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the trade and audit-log archival schedule.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			PollInterval:        duration{1 * time.Second},
			DiscoveryInterval:   duration{5 * time.Minute},
			LinkRefreshInterval: duration{30 * time.Second},
			DrainTimeout:        duration{15 * time.Second},
			ExitSlippage:        0.01,
			PaperTrading:        true,
		},
		Risk: RiskConfig{
			InitialCapital:     900,
			MaxPositionFrac:    0.10,
			MaxExposureFrac:    0.50,
			MaxConcurrent:      5,
			DailyLossFrac:      0.15,
			MinMatchConfidence: 0.6,
		},
		Detector: DetectorConfig{
			MinEdge:     0.02,
			MaxSlippage: 0.01,
		},
		Position: PositionConfig{
			StopLossFrac:   0.05,
			TakeProfitFrac: 0.10,
			FeeRate:        0.0015,
		},
		Order: OrderConfig{
			MaxRetries:   3,
			RetryBase:    duration{500 * time.Millisecond},
			FillTimeout:  duration{10 * time.Second},
			PollInterval: duration{500 * time.Millisecond},
		},
		Telemetry: TelemetryConfig{
			BaseURL: "https://api.pandascore.co",
			Games:   []string{"lol", "dota2"},
		},
		Venue: VenueConfig{
			BaseURL: "https://clob.polymarket.com",
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "esportsarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_authorized", "position_opened", "position_closed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Only server mode skips the trading pipeline. Unknown modes already
	// fail above; still reporting their engine problems keeps the error
	// list complete in one pass.
	runsEngine := strings.ToLower(c.Mode) != "server"

	// Engine
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be > 0")
	}
	if c.Engine.DiscoveryInterval.Duration <= 0 {
		errs = append(errs, "engine: discovery_interval must be > 0")
	}
	if c.Engine.LinkRefreshInterval.Duration <= 0 {
		errs = append(errs, "engine: link_refresh_interval must be > 0")
	}
	if c.Engine.ExitSlippage < 0 || c.Engine.ExitSlippage >= 1 {
		errs = append(errs, fmt.Sprintf("engine: exit_slippage must be in [0, 1), got %g", c.Engine.ExitSlippage))
	}

	// Risk
	if c.Risk.InitialCapital <= 0 {
		errs = append(errs, "risk: initial_capital must be > 0")
	}
	if c.Risk.MaxPositionFrac <= 0 || c.Risk.MaxPositionFrac > 1 {
		errs = append(errs, "risk: max_position_frac must be in (0, 1]")
	}
	if c.Risk.MaxExposureFrac <= 0 || c.Risk.MaxExposureFrac > 1 {
		errs = append(errs, "risk: max_exposure_frac must be in (0, 1]")
	}
	if c.Risk.MaxPositionFrac > c.Risk.MaxExposureFrac {
		errs = append(errs, "risk: max_position_frac must not exceed max_exposure_frac")
	}
	if c.Risk.MaxConcurrent < 1 {
		errs = append(errs, "risk: max_concurrent must be >= 1")
	}
	if c.Risk.DailyLossFrac <= 0 || c.Risk.DailyLossFrac > 1 {
		errs = append(errs, "risk: daily_loss_frac must be in (0, 1]")
	}
	if c.Risk.MinMatchConfidence < 0 || c.Risk.MinMatchConfidence > 1 {
		errs = append(errs, "risk: min_match_confidence must be in [0, 1]")
	}

	// Detector
	if c.Detector.MinEdge <= 0 || c.Detector.MinEdge >= 1 {
		errs = append(errs, "detector: min_edge must be in (0, 1)")
	}
	if c.Detector.MaxSlippage < 0 || c.Detector.MaxSlippage >= 1 {
		errs = append(errs, "detector: max_slippage must be in [0, 1)")
	}

	// Position
	if c.Position.StopLossFrac <= 0 || c.Position.StopLossFrac >= 1 {
		errs = append(errs, "position: stop_loss_frac must be in (0, 1)")
	}
	if c.Position.TakeProfitFrac <= 0 {
		errs = append(errs, "position: take_profit_frac must be > 0")
	}
	if c.Position.FeeRate < 0 || c.Position.FeeRate >= 1 {
		errs = append(errs, "position: fee_rate must be in [0, 1)")
	}

	// Order
	if c.Order.MaxRetries < 0 {
		errs = append(errs, "order: max_retries must be >= 0")
	}
	if c.Order.RetryBase.Duration <= 0 {
		errs = append(errs, "order: retry_base must be > 0")
	}
	if c.Order.FillTimeout.Duration <= 0 {
		errs = append(errs, "order: fill_timeout must be > 0")
	}
	if c.Order.PollInterval.Duration <= 0 {
		errs = append(errs, "order: poll_interval must be > 0")
	}

	// Telemetry — required whenever the engine runs.
	if runsEngine {
		if c.Telemetry.BaseURL == "" {
			errs = append(errs, "telemetry: base_url must not be empty")
		}
		if c.Telemetry.Token == "" {
			errs = append(errs, "telemetry: token is required for mode "+c.Mode)
		}
	}

	// Venue — live trading needs full credentials; paper mode only the feed.
	if runsEngine {
		if c.Venue.BaseURL == "" {
			errs = append(errs, "venue: base_url must not be empty")
		}
		if !c.Engine.PaperTrading {
			vk := c.Venue.ApiKey != ""
			vs := c.Venue.ApiSecret != ""
			vp := c.Venue.ApiPassphrase != ""
			if !(vk && vs && vp) {
				errs = append(errs, "venue: api_key, api_secret, and api_passphrase are required when paper_trading is off")
			}
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only needed when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
