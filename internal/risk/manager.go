// Package risk gates detected opportunities behind capital controls. All
// checks for one opportunity run and, on success, reserve capital under a
// single ledger lock so concurrent workers cannot double-spend the same
// balance.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Config holds the risk limits.
type Config struct {
	MaxPositionFrac    float64 // single position cap as a fraction of total capital
	MaxExposureFrac    float64 // cap on total committed capital
	MaxConcurrent      int     // maximum simultaneously open positions
	DailyLossFrac      float64 // daily realized loss that trips the circuit breaker
	MinMatchConfidence float64 // links below this confidence are not traded
	MaxSlippage        float64 // worst projected fill slippage over the implied price
}

// OpenCounter reports how many positions are currently open. Implemented by
// the position tracker.
type OpenCounter interface {
	OpenCount() int
}

// Manager applies the pre-trade checks in a fixed order and stops at the
// first failure.
type Manager struct {
	cfg    Config
	ledger *Ledger
	open   OpenCounter
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager around the shared ledger.
func NewManager(cfg Config, ledger *Ledger, open OpenCounter, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		ledger: ledger,
		open:   open,
		logger: logger.With(slog.String("component", "risk")),
		now:    time.Now,
	}
}

// Authorize validates the opportunity and, when every check passes, reserves
// its size from the ledger in the same critical section. The caller must
// Release or Realize the reservation once the order resolves.
func (m *Manager) Authorize(opp domain.Opportunity) error {
	now := m.now().UTC()

	// 1. Staleness: quotes move too fast to act on old signals.
	if opp.Expired(now) {
		return fmt.Errorf("risk: opportunity for %s expired at %s: %w",
			opp.Link.Key(), opp.ExpiresAt.Format(time.RFC3339), domain.ErrInvalidData)
	}

	// 2. Link confidence.
	if opp.Link.Confidence < m.cfg.MinMatchConfidence {
		return fmt.Errorf("risk: link confidence %.2f below %.2f: %w",
			opp.Link.Confidence, m.cfg.MinMatchConfidence, domain.ErrInvalidData)
	}

	// 3. Projected slippage at the proposed size. The detector proposes a
	// worst acceptable price; this check holds it against the risk limit
	// even if the detector was configured looser.
	if m.cfg.MaxSlippage > 0 && opp.ImpliedProb > 0 {
		projected := opp.MaxPrice/opp.ImpliedProb - 1
		if projected > m.cfg.MaxSlippage {
			return fmt.Errorf("risk: projected slippage %.4f exceeds %.4f: %w",
				projected, m.cfg.MaxSlippage, domain.ErrSlippageExceeded)
		}
	}

	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	m.ledger.rollDayLocked()
	total := m.ledger.available + m.ledger.committed

	// 4. Circuit breaker on daily realized loss. The basis is initial
	// capital, so the threshold does not shrink as losses accumulate.
	if m.cfg.DailyLossFrac > 0 && m.ledger.dailyRealized <= -m.ledger.initial*m.cfg.DailyLossFrac {
		m.logger.Warn("circuit breaker open",
			slog.Float64("daily_realized", m.ledger.dailyRealized),
			slog.Float64("limit", -m.ledger.initial*m.cfg.DailyLossFrac),
		)
		return fmt.Errorf("risk: daily loss %.2f hit limit: %w", m.ledger.dailyRealized, domain.ErrCircuitBroken)
	}

	// 5. Concurrent position count.
	if m.open != nil && m.cfg.MaxConcurrent > 0 && m.open.OpenCount() >= m.cfg.MaxConcurrent {
		return fmt.Errorf("risk: %d positions open: %w", m.open.OpenCount(), domain.ErrMaxPositions)
	}

	// 6. Single position size cap.
	if m.cfg.MaxPositionFrac > 0 && opp.Size > total*m.cfg.MaxPositionFrac {
		return fmt.Errorf("risk: size %.2f exceeds position cap %.2f: %w",
			opp.Size, total*m.cfg.MaxPositionFrac, domain.ErrExposureCeiling)
	}

	// 7. Aggregate exposure ceiling.
	if m.cfg.MaxExposureFrac > 0 && m.ledger.committed+opp.Size > total*m.cfg.MaxExposureFrac {
		return fmt.Errorf("risk: committed %.2f plus %.2f exceeds exposure cap %.2f: %w",
			m.ledger.committed, opp.Size, total*m.cfg.MaxExposureFrac, domain.ErrExposureCeiling)
	}

	// 8. Reserve. This is the only check that mutates state, so a failure
	// above leaves the ledger untouched.
	if err := m.ledger.reserveLocked(opp.Size); err != nil {
		return err
	}

	m.logger.Info("opportunity authorized",
		slog.String("link", opp.Link.Key()),
		slog.Float64("size", opp.Size),
		slog.Float64("available", m.ledger.available),
		slog.Float64("committed", m.ledger.committed),
	)
	return nil
}

// CircuitOpen reports whether the daily loss limit has been reached. Exit
// orders are still allowed while the breaker is open.
func (m *Manager) CircuitOpen() bool {
	snap := m.ledger.Snapshot()
	return m.cfg.DailyLossFrac > 0 && snap.DailyRealized <= -snap.InitialCapital*m.cfg.DailyLossFrac
}

// Ledger exposes the underlying ledger for settlement by the order manager.
func (m *Manager) Ledger() *Ledger { return m.ledger }
