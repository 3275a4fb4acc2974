// Package pipeline runs the background jobs of the market daemon: the
// batch resolver and the cold-storage archiver.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RunCron calls fn each time the schedule fires until ctx is cancelled. expr
// is a standard 5-field cron expression or a descriptor such as
// "@every 30s" or "@daily". A failing run is logged and does not stop the
// schedule.
func RunCron(ctx context.Context, expr string, logger *slog.Logger, fn func(context.Context) error) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("pipeline: parse cron %q: %w", expr, err)
	}
	logger.Info("cron started", slog.String("cron", expr))

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("cron stopped", slog.String("cron", expr))
			return ctx.Err()
		case <-timer.C:
			if err := fn(ctx); err != nil {
				logger.Error("cron run failed", slog.String("cron", expr), slog.String("error", err.Error()))
			}
		}
	}
}

// NextRun returns the first time after t at which expr fires.
func NextRun(expr string, t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("pipeline: parse cron %q: %w", expr, err)
	}
	return sched.Next(t), nil
}
