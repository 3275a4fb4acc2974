package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afrifutures/marketd/internal/domain"
)

// AuditStore keeps the append-only audit trail of ledger transitions in the
// audit_log table. Details are stored as JSONB.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	var raw []byte
	if len(detail) > 0 {
		var err error
		if raw, err = json.Marshal(detail); err != nil {
			return fmt.Errorf("postgres: encode %s detail: %w", event, err)
		}
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES (@event, @detail)`,
		pgx.NamedArgs{"event": event, "detail": raw},
	); err != nil {
		return fmt.Errorf("postgres: append audit %s: %w", event, err)
	}
	return nil
}

// List pages through the trail newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	sql, args := selectFrom("audit_log", "id, event, detail, created_at").
		between("created_at", opts.Since, opts.Until).
		orderBy("created_at DESC, id DESC").
		page(opts).
		build()

	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}

// ListBefore feeds the archiver: every entry older than before, in insertion
// order.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event, detail, created_at FROM audit_log WHERE created_at < $1 ORDER BY id`,
		before.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: audit before %s: %w", before.Format(time.DateOnly), err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit before %s: %w", before.Format(time.DateOnly), err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e   domain.AuditEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("decode detail of audit %d: %w", e.ID, err)
		}
	}
	return e, nil
}
