package order

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/venue"
)

// memOrderStore is an in-memory OrderStore for tests.
type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]domain.Order)}
}

func (s *memOrderStore) Create(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[o.ID] = o
	return nil
}

func (s *memOrderStore) Update(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.orders[o.ID] = o
	return nil
}

func (s *memOrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOrderStore) ListNonTerminal(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if !o.State.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListByLink(ctx context.Context, linkKey string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.LinkKey == linkKey {
			out = append(out, o)
		}
	}
	return out, nil
}

// scriptedVenue returns canned responses and records every call.
type scriptedVenue struct {
	mu          sync.Mutex
	placeErrs   []error // errors to return before succeeding
	placeAck    venue.OrderAck
	updates     []venue.OrderUpdate // consumed one per OrderStatus call
	placedKeys  []string
	cancelled   []string
	cancelErr   error
	statusPolls int
}

func (v *scriptedVenue) ListMarkets(ctx context.Context) ([]domain.Market, error) { return nil, nil }
func (v *scriptedVenue) GetQuote(ctx context.Context, m domain.Market) (domain.MarketQuote, error) {
	return domain.MarketQuote{}, nil
}

func (v *scriptedVenue) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placedKeys = append(v.placedKeys, req.IdempotencyKey)
	if len(v.placeErrs) > 0 {
		err := v.placeErrs[0]
		v.placeErrs = v.placeErrs[1:]
		return venue.OrderAck{}, err
	}
	return v.placeAck, nil
}

func (v *scriptedVenue) OrderStatus(ctx context.Context, id string) (venue.OrderUpdate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statusPolls++
	if len(v.updates) == 0 {
		return venue.OrderUpdate{VenueOrderID: id, Status: domain.OrderStateSubmitted}, nil
	}
	upd := v.updates[0]
	if len(v.updates) > 1 {
		v.updates = v.updates[1:]
	}
	return upd, nil
}

func (v *scriptedVenue) CancelOrder(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelled = append(v.cancelled, id)
	return v.cancelErr
}

// fakeClock makes sleep advance virtual time instantly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return ctx.Err()
}

func testManager(t *testing.T, v venue.Venue, store domain.OrderStore) (*Manager, *fakeClock) {
	t.Helper()
	m := NewManager(Config{
		MaxRetries:        3,
		RetryBase:         100 * time.Millisecond,
		FillTimeout:       10 * time.Second,
		PollInterval:      500 * time.Millisecond,
		IdempotencySecret: "test-secret",
	}, v, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	m.sleep = clock.Sleep
	return m, clock
}

func testOpp() domain.Opportunity {
	return domain.Opportunity{
		Link:     domain.MatchMarketLink{MatchID: "m1", MarketID: "mk1", Confidence: 0.9},
		TokenID:  "tok-a",
		Side:     domain.SideTeamA,
		Size:     50,
		MaxPrice: 0.46,
	}
}

func TestExecuteEntryImmediateFill(t *testing.T) {
	v := &scriptedVenue{placeAck: venue.OrderAck{
		VenueOrderID: "v-1", Status: domain.OrderStateFilled,
		FilledSize: 50, AvgFillPrice: 0.45,
	}}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStateFilled, o.State)
	assert.InDelta(t, 50, o.FilledSize, 1e-9)
	assert.InDelta(t, 0.45, o.AvgFillPrice, 1e-9)
	assert.NotNil(t, o.SubmittedAt)
	assert.NotNil(t, o.ResolvedAt)

	persisted, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateFilled, persisted.State)
}

func TestExecuteEntryRetriesTransientThenFills(t *testing.T) {
	v := &scriptedVenue{
		placeErrs: []error{
			fmt.Errorf("gateway: %w", domain.ErrTransient),
			fmt.Errorf("throttled: %w", domain.ErrRateLimited),
		},
		placeAck: venue.OrderAck{
			VenueOrderID: "v-1", Status: domain.OrderStateFilled,
			FilledSize: 50, AvgFillPrice: 0.45,
		},
	}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStateFilled, o.State)
	assert.Equal(t, 2, o.RetryCount)
	require.Len(t, v.placedKeys, 3)
	assert.Equal(t, v.placedKeys[0], v.placedKeys[1], "retries reuse the idempotency key")
	assert.Equal(t, v.placedKeys[1], v.placedKeys[2])
}

func TestExecuteEntryExhaustsRetries(t *testing.T) {
	transient := fmt.Errorf("down: %w", domain.ErrTransient)
	v := &scriptedVenue{placeErrs: []error{transient, transient, transient, transient}}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, domain.OrderStateRejected, o.State)
	assert.Len(t, v.placedKeys, 4, "initial attempt plus three retries")
}

func TestExecuteEntryNonTransientGoesStraightToRejected(t *testing.T) {
	v := &scriptedVenue{placeErrs: []error{fmt.Errorf("bad size: %w", domain.ErrInvalidData)}}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidData)
	assert.Equal(t, domain.OrderStateRejected, o.State)
	assert.Len(t, v.placedKeys, 1, "no retry for non-transient failures")
}

func TestExecuteEntryPartialFillThenFilled(t *testing.T) {
	v := &scriptedVenue{
		placeAck: venue.OrderAck{VenueOrderID: "v-1", Status: domain.OrderStateSubmitted},
		updates: []venue.OrderUpdate{
			{VenueOrderID: "v-1", Status: domain.OrderStatePartiallyFilled, FilledSize: 20, AvgFillPrice: 0.45},
			{VenueOrderID: "v-1", Status: domain.OrderStateFilled, FilledSize: 50, AvgFillPrice: 0.452},
		},
	}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStateFilled, o.State)
	assert.InDelta(t, 50, o.FilledSize, 1e-9)
	assert.InDelta(t, 0.452, o.AvgFillPrice, 1e-9)
}

func TestExecuteEntryFillTimeoutCancels(t *testing.T) {
	v := &scriptedVenue{
		placeAck: venue.OrderAck{VenueOrderID: "v-1", Status: domain.OrderStateSubmitted},
		updates: []venue.OrderUpdate{
			{VenueOrderID: "v-1", Status: domain.OrderStatePartiallyFilled, FilledSize: 20, AvgFillPrice: 0.45},
		},
	}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStateCancelled, o.State)
	assert.InDelta(t, 20, o.FilledSize, 1e-9, "partial fill survives the cancel")
	assert.Equal(t, []string{"v-1"}, v.cancelled)
}

func TestExecuteEntryCancelFailureRejectsOrder(t *testing.T) {
	v := &scriptedVenue{
		placeAck: venue.OrderAck{VenueOrderID: "v-1", Status: domain.OrderStateSubmitted},
		updates: []venue.OrderUpdate{
			{VenueOrderID: "v-1", Status: domain.OrderStatePartiallyFilled, FilledSize: 20, AvgFillPrice: 0.45},
		},
		cancelErr: fmt.Errorf("venue busy: %w", domain.ErrTransient),
	}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	o, err := m.ExecuteEntry(context.Background(), testOpp(), time.Now())
	require.Error(t, err)

	assert.Equal(t, domain.OrderStateRejected, o.State, "failed cancel must still terminate the order")
	assert.InDelta(t, 20, o.FilledSize, 1e-9, "partial fill survives the failed cancel")

	stored, gerr := store.GetByID(context.Background(), o.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.OrderStateRejected, stored.State)
}

func TestExecuteExitSellsPosition(t *testing.T) {
	v := &scriptedVenue{placeAck: venue.OrderAck{
		VenueOrderID: "v-9", Status: domain.OrderStateFilled,
		FilledSize: 55, AvgFillPrice: 0.55,
	}}
	store := newMemOrderStore()
	m, _ := testManager(t, v, store)

	pos := domain.Position{
		ID: "p1", LinkKey: "m1:mk1", MarketID: "mk1", TokenID: "tok-a",
		EntryPrice: 0.45, Size: 45, Shares: 100,
	}
	o, err := m.ExecuteExit(context.Background(), pos, 0.55, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderSideSell, o.Side)
	assert.Equal(t, domain.OrderKindExit, o.Kind)
	assert.Equal(t, "p1", o.PositionID)
	assert.Equal(t, domain.OrderStateFilled, o.State)
}

func TestReconcileResolvesLeftoverOrders(t *testing.T) {
	store := newMemOrderStore()
	ctx := context.Background()

	// One order that reached the venue and filled while we were down, one
	// still resting, and one that never made it out.
	filled := domain.Order{ID: "o1", VenueOrderID: "v-1", State: domain.OrderStateSubmitted}
	resting := domain.Order{ID: "o2", VenueOrderID: "v-2", State: domain.OrderStateSubmitted}
	unsent := domain.Order{ID: "o3", State: domain.OrderStateCreated}
	require.NoError(t, store.Create(ctx, filled))
	require.NoError(t, store.Create(ctx, resting))
	require.NoError(t, store.Create(ctx, unsent))

	v := &reconcileVenue{updates: map[string]venue.OrderUpdate{
		"v-1": {VenueOrderID: "v-1", Status: domain.OrderStateFilled, FilledSize: 50, AvgFillPrice: 0.45},
		"v-2": {VenueOrderID: "v-2", Status: domain.OrderStateSubmitted},
	}}
	m, _ := testManager(t, v, store)

	resolved, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Len(t, resolved, 3)

	o1, _ := store.GetByID(ctx, "o1")
	assert.Equal(t, domain.OrderStateFilled, o1.State)
	o2, _ := store.GetByID(ctx, "o2")
	assert.Equal(t, domain.OrderStateCancelled, o2.State)
	o3, _ := store.GetByID(ctx, "o3")
	assert.Equal(t, domain.OrderStateRejected, o3.State)
	assert.Equal(t, []string{"v-2"}, v.cancelled)

	left, err := store.ListNonTerminal(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

// reconcileVenue serves per-order status from a map.
type reconcileVenue struct {
	mu        sync.Mutex
	updates   map[string]venue.OrderUpdate
	cancelled []string
}

func (v *reconcileVenue) ListMarkets(ctx context.Context) ([]domain.Market, error) { return nil, nil }
func (v *reconcileVenue) GetQuote(ctx context.Context, m domain.Market) (domain.MarketQuote, error) {
	return domain.MarketQuote{}, nil
}
func (v *reconcileVenue) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	return venue.OrderAck{}, nil
}
func (v *reconcileVenue) OrderStatus(ctx context.Context, id string) (venue.OrderUpdate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updates[id], nil
}
func (v *reconcileVenue) CancelOrder(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelled = append(v.cancelled, id)
	return nil
}
