package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// ArchiveHandler triggers cold-storage archival runs on demand and lists the
// batches already written.
type ArchiveHandler struct {
	archiver      domain.Archiver
	reader        domain.BlobReader
	retentionDays int
	logger        *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. The archiver and reader may be
// nil when archival is disabled in config.
func NewArchiveHandler(archiver domain.Archiver, reader domain.BlobReader, retentionDays int, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver:      archiver,
		reader:        reader,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// listArchivesResponse wraps the list archives response.
type listArchivesResponse struct {
	Archives []domain.BlobInfo `json:"archives"`
}

// ListArchives returns the archive batches in blob storage, optionally
// filtered by kind (trades or audit).
// GET /api/archive?kind=trades
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusConflict, "archival is not enabled")
		return
	}

	prefix := "archive/"
	if kind := r.URL.Query().Get("kind"); kind != "" {
		prefix += kind + "/"
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	if infos == nil {
		infos = []domain.BlobInfo{}
	}

	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: infos})
}

// TriggerArchive runs one archival pass for trades and audit entries older
// than the retention window. The work runs inline; archival batches are
// small enough that the request completes quickly.
// POST /api/archive/trigger
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusConflict, "archival is not enabled")
		return
	}

	before := time.Now().UTC().AddDate(0, 0, -h.retentionDays)
	ctx := r.Context()

	trades, err := h.archiver.ArchiveTrades(ctx, before)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: trade archival failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "trade archival failed")
		return
	}

	audit, err := h.archiver.ArchiveAudit(ctx, before)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: audit archival failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "audit archival failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"before":          before.Format(time.RFC3339),
		"trades_archived": trades,
		"audit_archived":  audit,
	})
}
