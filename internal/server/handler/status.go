package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/risk"
)

// LinkSource exposes the engine's current match-market link table.
type LinkSource interface {
	Links() []domain.MatchMarketLink
}

// RiskSource exposes the live capital ledger and circuit breaker state.
type RiskSource interface {
	Ledger() *risk.Ledger
	CircuitOpen() bool
}

// PositionCounter reports how many positions are currently open.
type PositionCounter interface {
	OpenCount() int
}

// StatusHandler serves the live engine status for the dashboard.
type StatusHandler struct {
	mode      string
	paper     bool
	startedAt time.Time
	links     LinkSource
	riskMgr   RiskSource
	positions PositionCounter
}

// NewStatusHandler creates a StatusHandler over the given engine components.
// links, riskMgr, and positions may be nil when the engine is not running in
// this process; the corresponding fields are then omitted from the response.
func NewStatusHandler(mode string, paper bool, startedAt time.Time, links LinkSource, riskMgr RiskSource, positions PositionCounter) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		paper:     paper,
		startedAt: startedAt,
		links:     links,
		riskMgr:   riskMgr,
		positions: positions,
	}
}

// GetStatus responds with the engine mode, uptime, capital ledger snapshot,
// breaker state, and the current link table.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"paper_trading":  h.paper,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.riskMgr != nil {
		resp["ledger"] = h.riskMgr.Ledger().Snapshot()
		resp["circuit_open"] = h.riskMgr.CircuitOpen()
	}
	if h.positions != nil {
		resp["open_positions"] = h.positions.OpenCount()
	}
	if h.links != nil {
		links := h.links.Links()
		if links == nil {
			links = []domain.MatchMarketLink{}
		}
		resp["links"] = links
	}

	writeJSON(w, http.StatusOK, resp)
}
