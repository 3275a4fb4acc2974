package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETD_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setInt64(&cfg.Market.MinStake, "MARKETD_MARKET_MIN_STAKE")
	setInt64(&cfg.Market.FeeBps, "MARKETD_MARKET_FEE_BPS")
	setInt(&cfg.Market.MaxExpiryDays, "MARKETD_MARKET_MAX_EXPIRY_DAYS")

	// ── Resolution ──
	setStr(&cfg.Resolution.Cron, "MARKETD_RESOLUTION_CRON")
	setDuration(&cfg.Resolution.OracleTimeout, "MARKETD_RESOLUTION_ORACLE_TIMEOUT")
	setInt(&cfg.Resolution.MinConfidence, "MARKETD_RESOLUTION_MIN_CONFIDENCE")
	setDuration(&cfg.Resolution.MaxQuoteAge, "MARKETD_RESOLUTION_MAX_QUOTE_AGE")
	setInt(&cfg.Resolution.Concurrency, "MARKETD_RESOLUTION_CONCURRENCY")
	setInt(&cfg.Resolution.BatchSize, "MARKETD_RESOLUTION_BATCH_SIZE")
	setInt(&cfg.Resolution.OracleRatePerSec, "MARKETD_RESOLUTION_ORACLE_RATE_PER_SEC")
	setDuration(&cfg.Resolution.BackoffBase, "MARKETD_RESOLUTION_BACKOFF_BASE")
	setDuration(&cfg.Resolution.BackoffMax, "MARKETD_RESOLUTION_BACKOFF_MAX")
	setDuration(&cfg.Resolution.LockTTL, "MARKETD_RESOLUTION_LOCK_TTL")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "MARKETD_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.ApiKey, "MARKETD_ORACLE_API_KEY")
	setDuration(&cfg.Oracle.Timeout, "MARKETD_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.CacheTTL, "MARKETD_ORACLE_CACHE_TTL")

	// ── Custody ──
	setStr(&cfg.Custody.BaseURL, "MARKETD_CUSTODY_BASE_URL")
	setStr(&cfg.Custody.ApiKey, "MARKETD_CUSTODY_API_KEY")
	setStr(&cfg.Custody.ApiSecret, "MARKETD_CUSTODY_API_SECRET")
	setDuration(&cfg.Custody.Timeout, "MARKETD_CUSTODY_TIMEOUT")
	setInt64(&cfg.Custody.SandboxBalance, "MARKETD_CUSTODY_SANDBOX_BALANCE")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "MARKETD_STORAGE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARKETD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETD_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKETD_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "MARKETD_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "MARKETD_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKETD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "MARKETD_SERVER_API_KEY")
	setStr(&cfg.Server.ApiKey, "CRON_SECRET") // compatibility alias
	setInt(&cfg.Server.RateLimit, "MARKETD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "MARKETD_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETD_MODE")
	setStr(&cfg.LogLevel, "MARKETD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
