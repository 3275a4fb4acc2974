package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/afrifutures/marketd/internal/notify"
	"github.com/afrifutures/marketd/internal/pipeline"
	"github.com/afrifutures/marketd/internal/server"
	"github.com/afrifutures/marketd/internal/server/handler"
	"github.com/afrifutures/marketd/internal/server/ws"
	"github.com/afrifutures/marketd/internal/service"
)

// services holds the market engine built on top of Dependencies.
type services struct {
	markets    *service.MarketService
	staking    *service.StakingService
	resolution *service.ResolutionService
	claims     *service.ClaimService
	resolver   *service.Resolver
}

func (a *App) buildServices(deps *Dependencies) *services {
	events := service.NewEvents(deps.SignalBus, deps.Audit, a.logger)
	maxExpiry := time.Duration(a.cfg.Market.MaxExpiryDays) * 24 * time.Hour

	rc := a.cfg.Resolution
	svc := &services{
		markets: service.NewMarketService(deps.Markets, deps.Stakes, events, maxExpiry, a.logger),
		staking: service.NewStakingService(
			deps.Markets, deps.Positions, deps.Stakes, deps.Ledger, deps.Transfer, events,
			a.cfg.Market.MinStake, a.cfg.Market.FeeBps, a.logger,
		),
		resolution: service.NewResolutionService(deps.Markets, deps.Ledger, deps.Oracle, events, service.ResolutionConfig{
			OracleTimeout: rc.OracleTimeout.Duration,
			MinConfidence: rc.MinConfidence,
			MaxQuoteAge:   rc.MaxQuoteAge.Duration,
			FeeBps:        a.cfg.Market.FeeBps,
		}, a.logger),
		claims: service.NewClaimService(deps.Ledger, deps.Transfer, events, a.logger),
	}
	svc.resolver = service.NewResolver(svc.markets, svc.resolution, deps.LockManager, deps.RateLimiter, service.ResolverConfig{
		Concurrency:    rc.Concurrency,
		BatchSize:      rc.BatchSize,
		LockTTL:        rc.LockTTL.Duration,
		OracleRate:     rc.OracleRatePerSec,
		InitialBackoff: rc.BackoffBase.Duration,
		MaxBackoff:     rc.BackoffMax.Duration,
	}, a.logger)
	return svc
}

// ServerMode serves the HTTP and websocket API only. Markets are resolved
// through the protected resolve endpoint or by a separate resolver process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// ResolverMode runs the scheduled batch resolver, the optional archive job
// and the alert relay without exposing the API.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// FullMode runs the API and the background workers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	a.startWorkers(ctx, g, deps, svc)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// startWorkers adds the resolver, archive and notification goroutines to g.
// Alerts are relayed only here so that a split server/resolver deployment
// sends each alert once.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	job := pipeline.NewResolveJob(svc.resolver, a.logger)
	g.Go(func() error {
		return job.RunCron(ctx, a.cfg.Resolution.Cron)
	})

	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return archiver.RunCron(ctx, a.cfg.Archive.Cron)
		})
	}

	if deps.Notifier.Enabled() {
		relay := notify.NewBusRelay(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error {
			return relay.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "no notification channels configured; alerts disabled")
	}
}

// startHTTPServer adds the API server and websocket hub to g. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	checks := make(map[string]handler.Check, len(deps.Checks))
	for name, fn := range deps.Checks {
		checks[name] = fn
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.cfg.Mode, checks, a.logger),
		Markets:    handler.NewMarketHandler(svc.markets, a.logger),
		Staking:    handler.NewStakingHandler(svc.staking, a.logger),
		Settlement: handler.NewSettlementHandler(svc.resolution, svc.claims, a.logger),
		Prices:     handler.NewPriceHandler(deps.Oracle, a.logger),
	}
	if deps.Archives != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.Archives, a.logger)
	}

	if a.cfg.Server.ApiKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; the resolve endpoint is unprotected")
	}

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.ApiKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
