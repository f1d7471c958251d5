package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePositionStore struct {
	open    []domain.Position
	history []domain.Position
	err     error
}

func (f *fakePositionStore) Create(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) Update(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) Close(context.Context, string, float64, float64) error {
	return nil
}
func (f *fakePositionStore) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (f *fakePositionStore) ListOpen(context.Context) ([]domain.Position, error) {
	return f.open, f.err
}
func (f *fakePositionStore) ListHistory(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	if opts.Limit < len(f.history) {
		return f.history[:opts.Limit], nil
	}
	return f.history, nil
}

type fakeTracker struct {
	positions []domain.Position
}

func (f *fakeTracker) Snapshot() []domain.Position { return f.positions }

type fakeOrderStore struct {
	nonTerminal []domain.Order
	byLink      map[string][]domain.Order
}

func (f *fakeOrderStore) Create(context.Context, domain.Order) error { return nil }
func (f *fakeOrderStore) Update(context.Context, domain.Order) error { return nil }
func (f *fakeOrderStore) GetByID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (f *fakeOrderStore) ListNonTerminal(context.Context) ([]domain.Order, error) {
	return f.nonTerminal, nil
}
func (f *fakeOrderStore) ListByLink(_ context.Context, linkKey string, _ domain.ListOpts) ([]domain.Order, error) {
	return f.byLink[linkKey], nil
}

type fakeTradeStore struct {
	trades []domain.Trade
	pnl    map[time.Time]float64
	err    error
}

func (f *fakeTradeStore) Insert(context.Context, domain.Trade) error { return nil }
func (f *fakeTradeStore) ListRecent(context.Context, domain.ListOpts) ([]domain.Trade, error) {
	return f.trades, f.err
}
func (f *fakeTradeStore) SumRealizedPnL(_ context.Context, since time.Time) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.pnl[since], nil
}
func (f *fakeTradeStore) ListBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return nil, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatusWithoutEngineOmitsLedger(t *testing.T) {
	h := NewStatusHandler("server", true, time.Now().Add(-90*time.Second), nil, nil, nil)

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "server", body["mode"])
	assert.Equal(t, true, body["paper_trading"])
	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), float64(90))
	assert.NotContains(t, body, "ledger")
	assert.NotContains(t, body, "links")
	assert.NotContains(t, body, "open_positions")
}

func TestListPositionsPrefersTrackerSnapshot(t *testing.T) {
	store := &fakePositionStore{err: errors.New("store must not be hit")}
	tracker := &fakeTracker{positions: []domain.Position{
		{ID: "pos-1", LinkKey: "m1:mk1", Size: 90},
	}}
	h := NewPositionHandler(tracker, store, testLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "pos-1", resp.Positions[0].ID)
}

func TestListPositionsStoreFallback(t *testing.T) {
	store := &fakePositionStore{open: []domain.Position{{ID: "pos-2"}}}
	h := NewPositionHandler(nil, store, testLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "pos-2", resp.Positions[0].ID)
}

func TestListHistoryRespectsLimit(t *testing.T) {
	store := &fakePositionStore{history: []domain.Position{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	h := NewPositionHandler(nil, store, testLogger())

	rec := httptest.NewRecorder()
	h.ListHistory(rec, httptest.NewRequest(http.MethodGet, "/api/positions/history?limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Positions, 2)
}

func TestListOrdersByLink(t *testing.T) {
	store := &fakeOrderStore{
		nonTerminal: []domain.Order{{ID: "o-open"}},
		byLink: map[string][]domain.Order{
			"m1:mk1": {{ID: "o-1"}, {ID: "o-2"}},
		},
	}
	h := NewOrderHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders?link=m1:mk1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listOrdersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 2)

	rec = httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp = listOrdersResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, "o-open", resp.Orders[0].ID)
}

func TestListOrdersEmptyIsArrayNotNull(t *testing.T) {
	h := NewOrderHandler(&fakeOrderStore{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":[]}`, rec.Body.String())
}

func TestGetPnLSplitsDailyAndTotal(t *testing.T) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	store := &fakeTradeStore{pnl: map[time.Time]float64{
		dayStart:    -12.5,
		time.Time{}: 340.25,
	}}
	h := NewTradeHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.GetPnL(rec, httptest.NewRequest(http.MethodGet, "/api/trades/pnl", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.InDelta(t, -12.5, body["daily_realized_pnl"].(float64), 1e-9)
	assert.InDelta(t, 340.25, body["total_realized_pnl"].(float64), 1e-9)
	assert.Equal(t, dayStart.Format(time.RFC3339), body["day_start"])
}

func TestListTradesErrorIs500(t *testing.T) {
	h := NewTradeHandler(&fakeTradeStore{err: errors.New("db down")}, testLogger())

	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed to list trades", body["error"])
}

func TestParseListOptsBounds(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/trades?limit=9999&offset=-3", nil)
	opts := parseListOpts(r)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	r = httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	opts = parseListOpts(r)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}
