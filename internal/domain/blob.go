package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// Archive kinds. Each kind is written to its own key prefix.
const (
	ArchiveStakeEvents = "stake_events"
	ArchiveAudit       = "audit"
)

// ArchiveObject describes one archived JSONL file.
type ArchiveObject struct {
	Key          string
	Kind         string
	Month        string // YYYY-MM of the cutoff that produced the file
	Size         int64
	LastModified time.Time
}

// ArchiveKey returns the object key for kind and month, e.g.
// archive/stake_events/2026-01.jsonl.
func ArchiveKey(kind, month string) string {
	return "archive/" + kind + "/" + month + ".jsonl"
}

// ParseArchiveKey splits an object key produced by ArchiveKey. It reports
// false for keys outside the archive layout.
func ParseArchiveKey(key string) (kind, month string, ok bool) {
	rest, found := strings.CutPrefix(key, "archive/")
	if !found {
		return "", "", false
	}
	kind, file, found := strings.Cut(rest, "/")
	if !found || kind == "" {
		return "", "", false
	}
	month, found = strings.CutSuffix(file, ".jsonl")
	if !found || month == "" || strings.Contains(month, "/") {
		return "", "", false
	}
	return kind, month, true
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ArchiveReader lists and opens archived files. An empty kind lists every
// kind. Open returns ErrNotFound for a missing file.
type ArchiveReader interface {
	List(ctx context.Context, kind string) ([]ArchiveObject, error)
	Open(ctx context.Context, kind, month string) (io.ReadCloser, error)
}

// Archiver copies old append-only rows to cold storage.
type Archiver interface {
	ArchiveStakeEvents(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
