package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Token = "tok"

	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Second, cfg.Engine.PollInterval.Duration)
	assert.Equal(t, 900.0, cfg.Risk.InitialCapital)
	assert.Equal(t, 0.02, cfg.Detector.MinEdge)
	assert.True(t, cfg.Engine.PaperTrading)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "engine"

[engine]
poll_interval = "250ms"
paper_trading = false

[risk]
initial_capital = 5000.0

[telemetry]
token = "file-token"

[venue]
api_key = "k"
api_secret = "s"
api_passphrase = "p"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval.Duration)
	assert.False(t, cfg.Engine.PaperTrading)
	assert.Equal(t, 5000.0, cfg.Risk.InitialCapital)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.10, cfg.Risk.MaxPositionFrac)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeTOML(t, `
[telemetry]
token = "file-token"
`)

	t.Setenv("ESARB_TELEMETRY_TOKEN", "env-token")
	t.Setenv("ESARB_RISK_MAX_CONCURRENT", "9")
	t.Setenv("ESARB_ORDER_FILL_TIMEOUT", "30s")
	t.Setenv("ESARB_TELEMETRY_GAMES", "lol, dota2 ,")
	t.Setenv("ESARB_ENGINE_PAPER_TRADING", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telemetry.Token)
	assert.Equal(t, 9, cfg.Risk.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Order.FillTimeout.Duration)
	assert.Equal(t, []string{"lol", "dota2"}, cfg.Telemetry.Games)
	assert.False(t, cfg.Engine.PaperTrading)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Risk.MaxPositionFrac = 0.8 // exceeds max_exposure_frac
	cfg.Detector.MinEdge = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
	assert.Contains(t, err.Error(), "max_position_frac must not exceed max_exposure_frac")
	assert.Contains(t, err.Error(), "detector: min_edge")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "telemetry: token is required")
}

func TestValidateServerModeSkipsEngineCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Telemetry.Token = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidateLiveTradingNeedsVenueCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Token = "tok"
	cfg.Engine.PaperTrading = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue: api_key, api_secret, and api_passphrase are required")

	cfg.Venue.ApiKey = "k"
	cfg.Venue.ApiSecret = "s"
	cfg.Venue.ApiPassphrase = "p"
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Token = "telemetry-secret"
	cfg.Venue.ApiSecret = "venue-secret"
	cfg.Postgres.Password = "pg-secret"
	cfg.Order.IdempotencySecret = "idem-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Telemetry.Token)
	assert.Equal(t, "***", red.Venue.ApiSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Order.IdempotencySecret)
	// Empty secrets stay empty rather than being masked.
	assert.Empty(t, red.Redis.Password)
	// Originals are untouched.
	assert.Equal(t, "telemetry-secret", cfg.Telemetry.Token)

	// Mutating the redacted copy's slices must not leak back.
	red.Notify.Events[0] = "mutated"
	assert.Equal(t, "opportunity_authorized", cfg.Notify.Events[0])
}
