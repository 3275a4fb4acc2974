package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

// Archiver copies stake events and audit rows older than the retention
// window to cold storage. The rows stay in Postgres.
type Archiver struct {
	archive   domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewArchiver(archive domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		archive:   archive,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run makes one pass. Both logs are attempted even if the first upload
// fails.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.retention)
	log := a.logger.With(slog.Time("cutoff", cutoff))
	began := time.Now()

	stakes, stakeErr := a.archive.ArchiveStakeEvents(ctx, cutoff)
	if stakeErr != nil {
		stakeErr = fmt.Errorf("pipeline: archive stake events: %w", stakeErr)
	}
	audit, auditErr := a.archive.ArchiveAudit(ctx, cutoff)
	if auditErr != nil {
		auditErr = fmt.Errorf("pipeline: archive audit log: %w", auditErr)
	}

	if err := errors.Join(stakeErr, auditErr); err != nil {
		return err
	}
	log.InfoContext(ctx, "archive pass finished",
		slog.Int64("stake_events", stakes),
		slog.Int64("audit_entries", audit),
		slog.Duration("took", time.Since(began)),
	)
	return nil
}

// RunCron runs a pass every time expr fires, e.g. "0 3 * * *" for 03:00
// daily.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	return RunCron(ctx, expr, a.logger, a.Run)
}
