package pipeline

import (
	"context"
	"log/slog"

	"github.com/afrifutures/marketd/internal/service"
)

// ResolveJob drives the batch resolver on a schedule.
type ResolveJob struct {
	resolver *service.Resolver
	logger   *slog.Logger
}

// NewResolveJob creates a ResolveJob.
func NewResolveJob(resolver *service.Resolver, logger *slog.Logger) *ResolveJob {
	return &ResolveJob{resolver: resolver, logger: logger.With(slog.String("component", "resolve_job"))}
}

// Run performs one resolver pass.
func (j *ResolveJob) Run(ctx context.Context) error {
	res, err := j.resolver.RunOnce(ctx)
	if err != nil {
		return err
	}
	for _, item := range res.Results {
		if item.Status == "failed" {
			j.logger.WarnContext(ctx, "market left unresolved",
				slog.Int64("market_id", item.MarketID),
				slog.String("error", item.Error),
			)
		}
	}
	return nil
}

// RunCron runs a resolver pass every time expr fires. A pass runs
// immediately so markets that expired while the daemon was down are settled
// without waiting for the first tick.
func (j *ResolveJob) RunCron(ctx context.Context, expr string) error {
	if err := j.Run(ctx); err != nil {
		j.logger.ErrorContext(ctx, "initial resolver pass failed", slog.String("error", err.Error()))
	}
	return RunCron(ctx, expr, j.logger, j.Run)
}
