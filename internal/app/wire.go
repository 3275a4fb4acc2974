package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/afrifutures/marketd/internal/blob/s3"
	"github.com/afrifutures/marketd/internal/cache/redis"
	"github.com/afrifutures/marketd/internal/config"
	"github.com/afrifutures/marketd/internal/crypto"
	"github.com/afrifutures/marketd/internal/domain"
	"github.com/afrifutures/marketd/internal/notify"
	"github.com/afrifutures/marketd/internal/platform/custody"
	"github.com/afrifutures/marketd/internal/platform/oracle"
	"github.com/afrifutures/marketd/internal/store/memory"
	"github.com/afrifutures/marketd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Ledger and read stores
	Markets   domain.MarketStore
	Positions domain.PositionStore
	Stakes    domain.StakeEventStore
	Ledger    domain.Ledger
	Audit     domain.AuditStore

	// Coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// External collaborators
	Oracle   *oracle.CachedOracle
	Transfer domain.AssetTransfer

	// Blob storage, nil unless the archive is enabled
	Archives domain.ArchiveReader
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Checks are probed by the health endpoint.
	Checks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]func(ctx context.Context) error)}

	// --- Ledger ---
	switch cfg.Storage.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Stakes = postgres.NewStakeEventStore(pool)
		deps.Ledger = postgres.NewLedger(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pool.Ping
	case "memory":
		logger.Warn("using the in-memory ledger; state is lost on restart")
		store := memory.New()
		deps.Markets = store
		deps.Positions = store.PositionStore()
		deps.Stakes = store
		deps.Ledger = store
		deps.Audit = store.AuditStore()
	default:
		return nil, nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend)
	}

	// --- Redis ---
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

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- Oracle ---
	upstream := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.ApiKey, cfg.Oracle.Timeout.Duration)
	quotes := redis.NewQuoteCache(redisClient, cfg.Oracle.CacheTTL.Duration)
	deps.Oracle = oracle.NewCachedOracle(upstream, quotes, logger)

	// --- Custody ---
	if cfg.Custody.BaseURL != "" {
		auth := &crypto.HMACAuth{Key: cfg.Custody.ApiKey, Secret: cfg.Custody.ApiSecret}
		deps.Transfer = custody.NewClient(cfg.Custody.BaseURL, auth, cfg.Custody.Timeout.Duration)
	} else {
		logger.Warn("custody.base_url is empty; using the sandbox custodian",
			slog.Int64("sandbox_balance", cfg.Custody.SandboxBalance),
		)
		deps.Transfer = custody.NewSandbox(cfg.Custody.SandboxBalance)
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archives = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Stakes, deps.Audit, deps.Audit)
		deps.Checks["s3"] = s3Client.Health
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
