package handler

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

var archiveMonth = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ArchiveHandler serves the cold-storage archive to operators.
type ArchiveHandler struct {
	archives domain.ArchiveReader
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archives domain.ArchiveReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archives: archives, logger: logger.With(slog.String("handler", "archive"))}
}

type archiveJSON struct {
	Key          string `json:"key"`
	Kind         string `json:"kind"`
	Month        string `json:"month"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified,omitempty"`
}

// List returns archive files, optionally narrowed to one kind.
// GET /api/archives?kind=stake_events
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && !validArchiveKind(kind) {
		writeDomainError(w, r, h.logger, "list archives", domain.InvalidParam("kind", kind))
		return
	}
	objects, err := h.archives.List(r.Context(), kind)
	if err != nil {
		writeDomainError(w, r, h.logger, "list archives", err)
		return
	}
	out := make([]archiveJSON, len(objects))
	for i, o := range objects {
		out[i] = archiveJSON{Key: o.Key, Kind: o.Kind, Month: o.Month, Size: o.Size}
		if !o.LastModified.IsZero() {
			out[i].LastModified = o.LastModified.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

// Download streams one archive file as JSONL.
// GET /api/archives/{kind}/{month}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	kind, month := r.PathValue("kind"), r.PathValue("month")
	if !validArchiveKind(kind) {
		writeDomainError(w, r, h.logger, "download archive", domain.InvalidParam("kind", kind))
		return
	}
	if !archiveMonth.MatchString(month) {
		writeDomainError(w, r, h.logger, "download archive", domain.InvalidParam("month", "expected YYYY-MM"))
		return
	}

	body, err := h.archives.Open(r.Context(), kind, month)
	if err != nil {
		writeDomainError(w, r, h.logger, "download archive", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="`+kind+"-"+month+`.jsonl"`)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive download interrupted",
			slog.String("kind", kind),
			slog.String("month", month),
			slog.String("error", err.Error()),
		)
	}
}

func validArchiveKind(kind string) bool {
	return kind == domain.ArchiveStakeEvents || kind == domain.ArchiveAudit
}
