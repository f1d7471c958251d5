package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

type stubOpen struct{ n int }

func (s *stubOpen) OpenCount() int { return s.n }

func testManager(t *testing.T, capital float64) (*Manager, *Ledger, *stubOpen) {
	t.Helper()
	ledger := NewLedger(capital)
	open := &stubOpen{}
	m := NewManager(Config{
		MaxPositionFrac:    0.10,
		MaxExposureFrac:    0.50,
		MaxConcurrent:      5,
		DailyLossFrac:      0.15,
		MinMatchConfidence: 0.6,
	}, ledger, open, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return m, ledger, open
}

func validOpp(size float64) domain.Opportunity {
	now := time.Now().UTC()
	return domain.Opportunity{
		Link:        domain.MatchMarketLink{MatchID: "m1", MarketID: "mk1", Confidence: 0.9},
		TokenID:     "tok-a",
		Side:        domain.SideTeamA,
		ModelProb:   0.55,
		ImpliedProb: 0.48,
		Edge:        0.07,
		Size:        size,
		MaxPrice:    0.485,
		GeneratedAt: now,
		ExpiresAt:   now.Add(5 * time.Second),
	}
}

func TestLedgerReserveAndRelease(t *testing.T) {
	l := NewLedger(900)

	require.NoError(t, l.Reserve(100))
	snap := l.Snapshot()
	assert.InDelta(t, 800, snap.Available, 1e-9)
	assert.InDelta(t, 100, snap.Committed, 1e-9)
	assert.InDelta(t, 900, snap.Total, 1e-9)

	l.Release(100)
	snap = l.Snapshot()
	assert.InDelta(t, 900, snap.Available, 1e-9)
	assert.InDelta(t, 0, snap.Committed, 1e-9)
}

func TestLedgerReserveOverdraft(t *testing.T) {
	l := NewLedger(50)
	err := l.Reserve(60)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)

	snap := l.Snapshot()
	assert.InDelta(t, 50, snap.Available, 1e-9, "failed reserve must not move balances")
}

func TestLedgerRealize(t *testing.T) {
	l := NewLedger(900)
	require.NoError(t, l.Reserve(100))

	// Position closed at a 20 profit net of fees.
	l.Realize(100, 20)
	snap := l.Snapshot()
	assert.InDelta(t, 920, snap.Available, 1e-9)
	assert.InDelta(t, 0, snap.Committed, 1e-9)
	assert.InDelta(t, 20, snap.DailyRealized, 1e-9)

	require.NoError(t, l.Reserve(100))
	l.Realize(100, -35)
	snap = l.Snapshot()
	assert.InDelta(t, 885, snap.Available, 1e-9)
	assert.InDelta(t, -15, snap.DailyRealized, 1e-9)
}

func TestLedgerConcurrentReserves(t *testing.T) {
	l := NewLedger(500)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(10) == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, granted)
	snap := l.Snapshot()
	assert.InDelta(t, 0, snap.Available, 1e-9)
	assert.InDelta(t, 500, snap.Committed, 1e-9)
}

func TestAuthorizeReservesOnSuccess(t *testing.T) {
	m, ledger, _ := testManager(t, 900)

	require.NoError(t, m.Authorize(validOpp(50)))

	snap := ledger.Snapshot()
	assert.InDelta(t, 850, snap.Available, 1e-9)
	assert.InDelta(t, 50, snap.Committed, 1e-9)
}

func TestAuthorizeRejectsExpired(t *testing.T) {
	m, ledger, _ := testManager(t, 900)

	opp := validOpp(50)
	opp.ExpiresAt = time.Now().UTC().Add(-time.Second)
	err := m.Authorize(opp)
	assert.ErrorIs(t, err, domain.ErrInvalidData)
	assert.InDelta(t, 900, ledger.Snapshot().Available, 1e-9)
}

func TestAuthorizeRejectsLowConfidenceLink(t *testing.T) {
	m, _, _ := testManager(t, 900)

	opp := validOpp(50)
	opp.Link.Confidence = 0.4
	assert.ErrorIs(t, m.Authorize(opp), domain.ErrInvalidData)
}

func TestAuthorizeRejectsWhenMaxPositionsOpen(t *testing.T) {
	m, _, open := testManager(t, 900)
	open.n = 5

	assert.ErrorIs(t, m.Authorize(validOpp(50)), domain.ErrMaxPositions)
}

func TestAuthorizeRejectsOversizedPosition(t *testing.T) {
	m, ledger, _ := testManager(t, 900)

	// Cap is 10% of 900.
	err := m.Authorize(validOpp(91))
	assert.ErrorIs(t, err, domain.ErrExposureCeiling)
	assert.InDelta(t, 900, ledger.Snapshot().Available, 1e-9)
}

func TestAuthorizeRejectsAggregateExposure(t *testing.T) {
	m, ledger, _ := testManager(t, 900)

	// Exposure cap is 50% of 900 = 450.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Authorize(validOpp(85)))
	}
	err := m.Authorize(validOpp(85))
	assert.ErrorIs(t, err, domain.ErrExposureCeiling)
	assert.InDelta(t, 425, ledger.Snapshot().Committed, 1e-9)
}

func TestCircuitBreakerBasisIsInitialCapital(t *testing.T) {
	m, ledger, _ := testManager(t, 1000)

	// A 140 loss shrinks total capital to 860. Against the shrunken total
	// the 15% limit would be 129 and the breaker would already be open;
	// against initial capital the limit stays 150.
	require.NoError(t, ledger.Reserve(200))
	ledger.Realize(200, -140)
	assert.False(t, m.CircuitOpen())
	assert.NoError(t, m.Authorize(validOpp(50)))

	require.NoError(t, ledger.Reserve(100))
	ledger.Realize(100, -20)
	assert.True(t, m.CircuitOpen())
	assert.ErrorIs(t, m.Authorize(validOpp(50)), domain.ErrCircuitBroken)
}

func TestAuthorizeRejectsProjectedSlippage(t *testing.T) {
	ledger := NewLedger(900)
	m := NewManager(Config{
		MaxPositionFrac:    0.10,
		MaxExposureFrac:    0.50,
		MaxConcurrent:      5,
		DailyLossFrac:      0.15,
		MinMatchConfidence: 0.6,
		MaxSlippage:        0.01,
	}, ledger, &stubOpen{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	opp := validOpp(50)
	opp.MaxPrice = opp.ImpliedProb * 1.03
	err := m.Authorize(opp)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
	assert.InDelta(t, 900, ledger.Snapshot().Available, 1e-9)

	opp.MaxPrice = opp.ImpliedProb * 1.005
	assert.NoError(t, m.Authorize(opp))
}

func TestCircuitBreakerTripsAndResets(t *testing.T) {
	m, ledger, _ := testManager(t, 900)

	day1 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	now := day1
	ledger.now = func() time.Time { return now }
	m.now = func() time.Time { return now }
	ledger.day = dayOf(day1)

	// Realize a loss past 15% of initial capital.
	require.NoError(t, ledger.Reserve(200))
	ledger.Realize(200, -140)
	assert.True(t, m.CircuitOpen())

	opp := validOpp(50)
	opp.GeneratedAt = now
	opp.ExpiresAt = now.Add(5 * time.Second)
	assert.ErrorIs(t, m.Authorize(opp), domain.ErrCircuitBroken)

	// Next UTC day the counter resets and trading resumes.
	now = day1.Add(12 * time.Hour)
	assert.False(t, m.CircuitOpen())
	opp.GeneratedAt = now
	opp.ExpiresAt = now.Add(5 * time.Second)
	assert.NoError(t, m.Authorize(opp))
}
