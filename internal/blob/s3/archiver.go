package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// StakeArchiveStore lists stake events older than a cutoff.
type StakeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.StakeEvent, error)
}

// AuditArchiveStore lists audit rows older than a cutoff.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver. It writes the append-only stake
// log and the audit log to JSONL objects partitioned by the cutoff month.
// Rows are not deleted from the primary store.
type ArchiveImpl struct {
	writer domain.BlobWriter
	stakes StakeArchiveStore
	audit  AuditArchiveStore
	log    domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl. Each archive run is recorded in log
// when it is non-nil.
func NewArchiver(writer domain.BlobWriter, stakes StakeArchiveStore, audit AuditArchiveStore, log domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, stakes: stakes, audit: audit, log: log}
}

// stakeRecord is the archived form of a stake event.
type stakeRecord struct {
	ID        int64     `json:"id"`
	MarketID  int64     `json:"market_id"`
	User      string    `json:"user"`
	Side      string    `json:"side"`
	Amount    int64     `json:"amount"`
	Shares    int64     `json:"shares"`
	Receipt   string    `json:"receipt"`
	Timestamp time.Time `json:"timestamp"`
}

type auditRecord struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ArchiveStakeEvents uploads every stake event before the cutoff to
// archive/stake_events/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveStakeEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.stakes.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive stake events query: %w", err)
	}
	records := make([]stakeRecord, len(events))
	for i, ev := range events {
		records[i] = stakeRecord{
			ID:        ev.ID,
			MarketID:  ev.MarketID,
			User:      ev.User,
			Side:      string(ev.Side),
			Amount:    ev.Amount,
			Shares:    ev.Shares,
			Receipt:   ev.Receipt,
			Timestamp: ev.Timestamp,
		}
	}
	return upload(ctx, a, domain.ArchiveStakeEvents, before, records)
}

// ArchiveAudit uploads every audit row before the cutoff to
// archive/audit/YYYY-MM.jsonl.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	records := make([]auditRecord, len(entries))
	for i, e := range entries {
		records[i] = auditRecord{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt}
	}
	return upload(ctx, a, domain.ArchiveAudit, before, records)
}

func upload[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if a.log != nil {
		if err := a.log.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath builds the object key for the month containing before.
func archivePath(kind string, before time.Time) string {
	return domain.ArchiveKey(kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
