package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Ledger tracks capital atomically across concurrent decision workers.
// Available plus committed never exceeds total capital, and every reserve
// is balanced by a release or a realization.
type Ledger struct {
	mu sync.Mutex

	initial       float64
	available     float64
	committed     float64
	dailyRealized float64
	day           time.Time // UTC midnight of the current trading day

	now func() time.Time
}

// Snapshot is a point-in-time copy of the ledger state.
type Snapshot struct {
	InitialCapital float64   `json:"initial_capital"`
	Available      float64   `json:"available"`
	Committed      float64   `json:"committed"`
	Total          float64   `json:"total"`
	DailyRealized  float64   `json:"daily_realized"`
	Day            time.Time `json:"day"`
}

// NewLedger creates a ledger seeded with the starting capital.
func NewLedger(initialCapital float64) *Ledger {
	l := &Ledger{
		initial:   initialCapital,
		available: initialCapital,
		now:       time.Now,
	}
	l.day = dayOf(l.now())
	return l
}

// Reserve moves amount from available to committed. It fails when the
// available balance cannot cover the amount.
func (l *Ledger) Reserve(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserveLocked(amount)
}

func (l *Ledger) reserveLocked(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: reserve amount %.2f: %w", amount, domain.ErrInvalidData)
	}
	if amount > l.available {
		return fmt.Errorf("ledger: reserve %.2f exceeds available %.2f: %w", amount, l.available, domain.ErrInsufficientCapital)
	}
	l.available -= amount
	l.committed += amount
	return nil
}

// Release returns a reserved amount to available without recording any
// profit or loss. Used when an order fails before filling.
func (l *Ledger) Release(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount <= 0 {
		return
	}
	if amount > l.committed {
		amount = l.committed
	}
	l.committed -= amount
	l.available += amount
}

// Realize settles a closed position: the original reservation leaves
// committed and the proceeds, which may be more or less than the stake,
// return to available. pnl is net of fees.
func (l *Ledger) Realize(reserved, pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()
	if reserved > l.committed {
		reserved = l.committed
	}
	l.committed -= reserved
	proceeds := reserved + pnl
	if proceeds < 0 {
		proceeds = 0
	}
	l.available += proceeds
	l.dailyRealized += pnl
}

// Snapshot returns a copy of the current balances.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()
	return Snapshot{
		InitialCapital: l.initial,
		Available:      l.available,
		Committed:      l.committed,
		Total:          l.available + l.committed,
		DailyRealized:  l.dailyRealized,
		Day:            l.day,
	}
}

// rollDayLocked resets the daily realized counter when the UTC calendar
// date has advanced. Checked lazily on access rather than by timer.
func (l *Ledger) rollDayLocked() {
	today := dayOf(l.now())
	if today.After(l.day) {
		l.day = today
		l.dailyRealized = 0
	}
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
