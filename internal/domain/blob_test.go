package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveKeyRoundTrip(t *testing.T) {
	key := ArchiveKey(ArchiveStakeEvents, "2026-03")
	assert.Equal(t, "archive/stake_events/2026-03.jsonl", key)

	kind, month, ok := ParseArchiveKey(key)
	assert.True(t, ok)
	assert.Equal(t, ArchiveStakeEvents, kind)
	assert.Equal(t, "2026-03", month)
}

func TestParseArchiveKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"archive/",
		"archive/audit",
		"archive/audit/2026-01.csv",
		"archive//2026-01.jsonl",
		"archive/audit/nested/2026-01.jsonl",
		"backups/audit/2026-01.jsonl",
	} {
		_, _, ok := ParseArchiveKey(key)
		assert.False(t, ok, key)
	}
}
