package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// PositionSource exposes the tracker's in-memory open position set.
type PositionSource interface {
	Snapshot() []domain.Position
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	open   PositionSource
	store  domain.PositionStore
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler. open may be nil when the
// engine is not running in this process; ListPositions then falls back to the
// store.
func NewPositionHandler(open PositionSource, store domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		open:   open,
		store:  store,
		logger: logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns all currently open positions.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	var err error

	if h.open != nil {
		positions = h.open.Snapshot()
	} else {
		positions, err = h.store.ListOpen(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListHistory returns historical positions, newest first, with pagination.
// GET /api/positions/history?limit=50&offset=0
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.ListHistory(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
