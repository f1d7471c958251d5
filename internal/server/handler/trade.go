package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// TradeHandler serves the closed round-trip history.
type TradeHandler struct {
	trades domain.TradeStore
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler over the given store.
func NewTradeHandler(trades domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// listTradesResponse wraps the list trades response.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns recent trades, newest first, with pagination.
// GET /api/trades?limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}

	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// GetPnL returns the realized P&L summed since the start of the current UTC
// day, plus an all-time figure.
// GET /api/trades/pnl
func (h *TradeHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	daily, err := h.trades.SumRealizedPnL(r.Context(), dayStart)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sum daily pnl failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to sum realized pnl")
		return
	}

	total, err := h.trades.SumRealizedPnL(r.Context(), time.Time{})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sum total pnl failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to sum realized pnl")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"daily_realized_pnl": daily,
		"total_realized_pnl": total,
		"day_start":          dayStart.Format(time.RFC3339),
	})
}
