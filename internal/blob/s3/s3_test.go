package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrifutures/marketd/internal/domain"
)

type memWriter struct{ objects map[string][]byte }

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

type stakeList []domain.StakeEvent

func (l stakeList) ListBefore(_ context.Context, before time.Time) ([]domain.StakeEvent, error) {
	var out []domain.StakeEvent
	for _, ev := range l {
		if ev.Timestamp.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type auditList []domain.AuditEntry

func (l auditList) ListBefore(context.Context, time.Time) ([]domain.AuditEntry, error) { return l, nil }

type auditSink struct{ events []string }

func (s *auditSink) Log(_ context.Context, event string, _ map[string]any) error {
	s.events = append(s.events, event)
	return nil
}

func (s *auditSink) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *auditSink) ListBefore(context.Context, time.Time) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveStakeEvents(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	stakes := stakeList{
		{ID: 1, MarketID: 3, User: "0xA", Side: domain.SideYes, Amount: 100, Shares: 100, Timestamp: cutoff.Add(-time.Hour)},
		{ID: 2, MarketID: 3, User: "0xB", Side: domain.SideNo, Amount: 50, Shares: 50, Timestamp: cutoff.Add(-time.Minute)},
		{ID: 3, MarketID: 4, User: "0xB", Side: domain.SideNo, Amount: 5, Shares: 5, Timestamp: cutoff.Add(time.Hour)},
	}
	w := &memWriter{objects: map[string][]byte{}}
	sink := &auditSink{}
	a := NewArchiver(w, stakes, auditList{}, sink)

	n, err := a.ArchiveStakeEvents(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"archive.stake_events"}, sink.events)

	body, ok := w.objects["archive/stake_events/2026-02.jsonl"]
	require.True(t, ok)
	sc := bufio.NewScanner(bytes.NewReader(body))
	var lines []stakeRecord
	for sc.Scan() {
		var rec stakeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "YES", lines[0].Side)
	assert.Equal(t, int64(50), lines[1].Amount)
}

func TestArchiveNothingToDo(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	a := NewArchiver(w, stakeList{}, auditList{}, nil)

	n, err := a.ArchiveAudit(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}

func TestSortArchiveNewestFirst(t *testing.T) {
	objects := []domain.ArchiveObject{
		{Kind: domain.ArchiveStakeEvents, Month: "2026-01"},
		{Kind: domain.ArchiveStakeEvents, Month: "2026-03"},
		{Kind: domain.ArchiveAudit, Month: "2026-03"},
	}
	sortArchive(objects)
	assert.Equal(t, "audit", objects[0].Kind)
	assert.Equal(t, "2026-03", objects[1].Month)
	assert.Equal(t, "2026-01", objects[2].Month)
}
