// Package config defines the top-level configuration for marketd and provides
// validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETD_* environment variables.
type Config struct {
	Market     MarketConfig     `toml:"market"`
	Resolution ResolutionConfig `toml:"resolution"`
	Oracle     OracleConfig     `toml:"oracle"`
	Custody    CustodyConfig    `toml:"custody"`
	Storage    StorageConfig    `toml:"storage"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MarketConfig holds market creation and staking parameters.
type MarketConfig struct {
	MinStake      int64 `toml:"min_stake"`
	FeeBps        int64 `toml:"fee_bps"`
	MaxExpiryDays int   `toml:"max_expiry_days"`
}

// ResolutionConfig holds resolver scheduling and oracle acceptance rules.
type ResolutionConfig struct {
	Cron             string   `toml:"cron"`
	OracleTimeout    duration `toml:"oracle_timeout"`
	MinConfidence    int      `toml:"min_confidence"`
	MaxQuoteAge      duration `toml:"max_quote_age"`
	Concurrency      int      `toml:"concurrency"`
	BatchSize        int      `toml:"batch_size"`
	OracleRatePerSec int      `toml:"oracle_rate_per_sec"`
	BackoffBase      duration `toml:"backoff_base"`
	BackoffMax       duration `toml:"backoff_max"`
	LockTTL          duration `toml:"lock_ttl"`
}

// OracleConfig holds the commodity price feed endpoint.
type OracleConfig struct {
	BaseURL  string   `toml:"base_url"`
	ApiKey   string   `toml:"api_key"`
	Timeout  duration `toml:"timeout"`
	CacheTTL duration `toml:"cache_ttl"`
}

// CustodyConfig holds the asset custody endpoint. An empty base_url selects
// the in-process sandbox.
type CustodyConfig struct {
	BaseURL        string   `toml:"base_url"`
	ApiKey         string   `toml:"api_key"`
	ApiSecret      string   `toml:"api_secret"`
	Timeout        duration `toml:"timeout"`
	SandboxBalance int64    `toml:"sandbox_balance"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
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

// ArchiveConfig controls the cold-storage job.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so that BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ApiKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials and the events that
// trigger them.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with sensible defaults for local
// development. Secrets are left empty.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			MinStake:      1,
			FeeBps:        200,
			MaxExpiryDays: 365,
		},
		Resolution: ResolutionConfig{
			Cron:             "*/5 * * * *",
			OracleTimeout:    duration{10 * time.Second},
			MinConfidence:    50,
			MaxQuoteAge:      duration{time.Hour},
			Concurrency:      4,
			BatchSize:        100,
			OracleRatePerSec: 5,
			BackoffBase:      duration{30 * time.Second},
			BackoffMax:       duration{30 * time.Minute},
			LockTTL:          duration{2 * time.Minute},
		},
		Oracle: OracleConfig{
			BaseURL:  "http://localhost:8080",
			Timeout:  duration{10 * time.Second},
			CacheTTL: duration{5 * time.Minute},
		},
		Custody: CustodyConfig{
			Timeout:        duration{15 * time.Second},
			SandboxBalance: 1_000_000,
		},
		Storage: StorageConfig{
			Backend: "postgres",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketd",
			User:          "marketd",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketd",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market.resolved", "oracle.failure"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"resolver": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validNotifyEvents enumerates the events a notifier can subscribe to.
var validNotifyEvents = map[string]bool{
	"market.resolved": true,
	"oracle.failure":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, resolver, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.MinStake < 1 {
		errs = append(errs, "market: min_stake must be >= 1")
	}
	if c.Market.FeeBps < 0 || c.Market.FeeBps >= 10000 {
		errs = append(errs, fmt.Sprintf("market: fee_bps must be 0-9999, got %d", c.Market.FeeBps))
	}
	if c.Market.MaxExpiryDays < 0 {
		errs = append(errs, "market: max_expiry_days must be >= 0")
	}

	// Resolution
	if _, err := cron.ParseStandard(c.Resolution.Cron); err != nil {
		errs = append(errs, fmt.Sprintf("resolution: invalid cron %q: %v", c.Resolution.Cron, err))
	}
	if c.Resolution.OracleTimeout.Duration <= 0 {
		errs = append(errs, "resolution: oracle_timeout must be > 0")
	}
	if c.Resolution.MinConfidence < 0 || c.Resolution.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("resolution: min_confidence must be 0-100, got %d", c.Resolution.MinConfidence))
	}
	if c.Resolution.Concurrency < 1 {
		errs = append(errs, "resolution: concurrency must be >= 1")
	}
	if c.Resolution.BatchSize < 0 {
		errs = append(errs, "resolution: batch_size must be >= 0")
	}
	if c.Resolution.BackoffMax.Duration < c.Resolution.BackoffBase.Duration {
		errs = append(errs, "resolution: backoff_max must not be less than backoff_base")
	}

	// Oracle
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	} else if _, err := url.ParseRequestURI(c.Oracle.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("oracle: invalid base_url %q", c.Oracle.BaseURL))
	}

	// Custody: key and secret travel together.
	if c.Custody.BaseURL != "" && (c.Custody.ApiKey == "" || c.Custody.ApiSecret == "") {
		errs = append(errs, "custody: api_key and api_secret are required when base_url is set")
	}
	if c.Custody.BaseURL == "" && c.Custody.SandboxBalance < 0 {
		errs = append(errs, "custody: sandbox_balance must be >= 0")
	}

	// Storage
	switch c.Storage.Backend {
	case "postgres":
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: postgres, memory)", c.Storage.Backend))
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if _, err := cron.ParseStandard(c.Archive.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("archive: invalid cron %q: %v", c.Archive.Cron, err))
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Storage.Backend == "memory" {
			errs = append(errs, "archive: requires the postgres storage backend")
		}
	}

	// Server
	if c.Mode != "resolver" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !validNotifyEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
