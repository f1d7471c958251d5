// Package position tracks open positions, marks them to market, and decides
// stop-loss and take-profit exits.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Config holds exit thresholds and the venue fee rate.
type Config struct {
	StopLossFrac   float64 // fraction below entry that forces an exit
	TakeProfitFrac float64 // fraction above entry that takes profit
	FeeRate        float64 // venue fee on filled notional
}

// Tracker owns the open position set. Persisted state is the source of
// truth; the in-memory index exists so HasOpen and OpenCount stay cheap on
// the hot decision path.
type Tracker struct {
	cfg       Config
	positions domain.PositionStore
	trades    domain.TradeStore
	logger    *slog.Logger

	mu      sync.RWMutex
	byLink  map[string]domain.Position // link key -> open position
	opening map[string]struct{}        // links claimed by an Open still persisting

	now func() time.Time
}

// NewTracker creates a Tracker. Call Load before use to hydrate the index
// from the store.
func NewTracker(cfg Config, positions domain.PositionStore, trades domain.TradeStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		cfg:       cfg,
		positions: positions,
		trades:    trades,
		logger:    logger.With(slog.String("component", "position")),
		byLink:    make(map[string]domain.Position),
		opening:   make(map[string]struct{}),
		now:       time.Now,
	}
}

// Load hydrates the in-memory index from persisted open positions.
func (t *Tracker) Load(ctx context.Context) error {
	open, err := t.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("position: load open: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byLink = make(map[string]domain.Position, len(open))
	for _, p := range open {
		t.byLink[p.LinkKey] = p
	}
	t.logger.InfoContext(ctx, "open positions loaded", slog.Int("count", len(open)))
	return nil
}

// HasOpen reports whether a position is open for the link.
func (t *Tracker) HasOpen(linkKey string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byLink[linkKey]
	return ok
}

// OpenCount returns the number of open positions.
func (t *Tracker) OpenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byLink)
}

// Open creates and persists a position from a filled entry order. Stop and
// target prices are fixed at open relative to the average fill price.
func (t *Tracker) Open(ctx context.Context, opp domain.Opportunity, filled domain.Order) (domain.Position, error) {
	if filled.FilledSize <= 0 || filled.AvgFillPrice <= 0 {
		return domain.Position{}, fmt.Errorf("position: open from empty fill: %w", domain.ErrInvalidData)
	}

	// One open position per link. The detector suppresses repeat signals,
	// but the tracker is the authority: the link is claimed under the lock
	// before the store write, so concurrent opens cannot both pass.
	t.mu.Lock()
	_, open := t.byLink[filled.LinkKey]
	_, claimed := t.opening[filled.LinkKey]
	if open || claimed {
		t.mu.Unlock()
		return domain.Position{}, fmt.Errorf("position: link %s: %w", filled.LinkKey, domain.ErrPositionOpen)
	}
	t.opening[filled.LinkKey] = struct{}{}
	t.mu.Unlock()

	entry := filled.AvgFillPrice
	fees := filled.FilledSize * t.cfg.FeeRate
	pos := domain.Position{
		ID:           uuid.New().String(),
		LinkKey:      filled.LinkKey,
		MatchID:      opp.Link.MatchID,
		MarketID:     filled.MarketID,
		TokenID:      filled.TokenID,
		Side:         opp.Side,
		EntryPrice:   entry,
		Size:         filled.FilledSize,
		Shares:       filled.FilledSize / entry,
		StopLoss:     entry * (1 - t.cfg.StopLossFrac),
		TakeProfit:   entry * (1 + t.cfg.TakeProfitFrac),
		CurrentPrice: entry,
		FeesPaid:     fees,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     t.now().UTC(),
	}

	if err := t.positions.Create(ctx, pos); err != nil {
		t.mu.Lock()
		delete(t.opening, filled.LinkKey)
		t.mu.Unlock()
		return domain.Position{}, fmt.Errorf("position: persist open: %w", err)
	}

	t.mu.Lock()
	delete(t.opening, filled.LinkKey)
	t.byLink[pos.LinkKey] = pos
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("link", pos.LinkKey),
		slog.Float64("entry", entry),
		slog.Float64("size", pos.Size),
		slog.Float64("stop_loss", pos.StopLoss),
		slog.Float64("take_profit", pos.TakeProfit),
	)
	return pos, nil
}

// ExitDecision pairs a position with the reason it must close.
type ExitDecision struct {
	Position domain.Position
	Reason   domain.ExitReason
}

// Mark updates the position for the link with the latest price, persists the
// new unrealized PnL, and returns an exit decision when a threshold is hit.
func (t *Tracker) Mark(ctx context.Context, linkKey string, price float64) (ExitDecision, bool, error) {
	t.mu.Lock()
	pos, ok := t.byLink[linkKey]
	if !ok {
		t.mu.Unlock()
		return ExitDecision{}, false, nil
	}
	pos.MarkPrice(price)
	t.byLink[linkKey] = pos
	t.mu.Unlock()

	if err := t.positions.Update(ctx, pos); err != nil {
		return ExitDecision{}, false, fmt.Errorf("position: persist mark: %w", err)
	}

	switch {
	case pos.StopLossHit(price):
		return ExitDecision{Position: pos, Reason: domain.ExitReasonStopLoss}, true, nil
	case pos.TakeProfitHit(price):
		return ExitDecision{Position: pos, Reason: domain.ExitReasonTakeProfit}, true, nil
	}
	return ExitDecision{}, false, nil
}

// CloseFromExit settles a position against its filled exit order: persist
// the close, record the trade, and drop it from the open index. It returns
// the realized PnL net of all fees for ledger settlement.
func (t *Tracker) CloseFromExit(ctx context.Context, pos domain.Position, exit domain.Order, reason domain.ExitReason) (domain.Trade, error) {
	if exit.AvgFillPrice <= 0 {
		return domain.Trade{}, fmt.Errorf("position: close %s from empty fill: %w", pos.ID, domain.ErrInvalidData)
	}

	exitPrice := exit.AvgFillPrice
	exitFees := exit.FilledSize * t.cfg.FeeRate
	proceeds := pos.Shares * exitPrice
	realized := proceeds - pos.Size - pos.FeesPaid - exitFees

	if err := t.positions.Close(ctx, pos.ID, exitPrice, realized); err != nil {
		return domain.Trade{}, fmt.Errorf("position: persist close: %w", err)
	}

	now := t.now().UTC()
	trade := domain.Trade{
		ID:          0,
		PositionID:  pos.ID,
		LinkKey:     pos.LinkKey,
		MatchID:     pos.MatchID,
		MarketID:    pos.MarketID,
		TokenID:     pos.TokenID,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Size:        pos.Size,
		Shares:      pos.Shares,
		RealizedPnL: realized,
		FeesPaid:    pos.FeesPaid + exitFees,
		ExitReason:  reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
	}
	if err := t.trades.Insert(ctx, trade); err != nil {
		// The position is already closed; losing the trade row is an audit
		// gap, not a capital error.
		t.logger.ErrorContext(ctx, "trade insert failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	t.mu.Lock()
	delete(t.byLink, pos.LinkKey)
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("reason", string(reason)),
		slog.Float64("exit", exitPrice),
		slog.Float64("realized_pnl", realized),
	)
	return trade, nil
}

// Snapshot returns a copy of the open positions in no particular order.
func (t *Tracker) Snapshot() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.byLink))
	for _, p := range t.byLink {
		out = append(out, p)
	}
	return out
}

// Get returns the open position for a link.
func (t *Tracker) Get(linkKey string) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byLink[linkKey]
	return p, ok
}
