package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "resolver"

[market]
fee_bps = 150

[resolution]
oracle_timeout = "3s"
batch_size = 25

[storage]
backend = "memory"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "resolver", cfg.Mode)
	assert.Equal(t, int64(150), cfg.Market.FeeBps)
	assert.Equal(t, int64(1), cfg.Market.MinStake)
	assert.Equal(t, 3*time.Second, cfg.Resolution.OracleTimeout.Duration)
	assert.Equal(t, 25, cfg.Resolution.BatchSize)
	assert.Equal(t, 4, cfg.Resolution.Concurrency)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[oracle]\ntimeout = \"soon\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETD_MODE", "server")
	t.Setenv("MARKETD_MARKET_FEE_BPS", "300")
	t.Setenv("MARKETD_RESOLUTION_MAX_QUOTE_AGE", "15m")
	t.Setenv("MARKETD_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MARKETD_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("MARKETD_REDIS_POOL_SIZE", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, int64(300), cfg.Market.FeeBps)
	assert.Equal(t, 15*time.Minute, cfg.Resolution.MaxQuoteAge.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, 20, cfg.Redis.PoolSize, "unparseable values keep the default")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Market.FeeBps = 10000
	cfg.Resolution.Cron = "every minute"
	cfg.Storage.Backend = "sqlite"
	cfg.Custody.BaseURL = "https://custody.example"
	cfg.Notify.TelegramToken = "token"
	cfg.Notify.Events = []string{"order_filled"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"market: fee_bps",
		"resolution: invalid cron",
		`storage: unknown backend "sqlite"`,
		"custody: api_key and api_secret",
		"notify: telegram_token and telegram_chat_id",
		`notify: unknown event "order_filled"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateArchiveNeedsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.Storage.Backend = "memory"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: requires the postgres storage backend")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Custody.ApiSecret = "s3cr3t"
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Server.ApiKey = "operator"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Custody.ApiSecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.ApiKey)
	assert.Empty(t, out.Oracle.ApiKey, "empty secrets stay empty")

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "pw", cfg.Postgres.Password)
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
