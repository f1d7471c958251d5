package venue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

type stubData struct {
	markets []domain.Market
	quote   domain.MarketQuote
}

func (s *stubData) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return s.markets, nil
}

func (s *stubData) GetQuote(ctx context.Context, market domain.Market) (domain.MarketQuote, error) {
	return s.quote, nil
}

func testMarket() domain.Market {
	return domain.Market{
		ID:       "mk1",
		Question: "T1 vs Gen.G winner",
		Outcomes: [2]string{"T1", "Gen.G"},
		TokenIDs: [2]string{"tok-a", "tok-b"},
		Status:   domain.MarketStatusActive,
	}
}

func quoteAt(ask, askDepth float64) domain.MarketQuote {
	return domain.MarketQuote{
		MarketID: "mk1",
		TokenA: domain.TokenQuote{
			TokenID: "tok-a", BestBid: ask - 0.02, BestAsk: ask,
			BidDepth: 1000, AskDepth: askDepth,
		},
		TokenB: domain.TokenQuote{
			TokenID: "tok-b", BestBid: 1 - ask - 0.01, BestAsk: 1 - ask + 0.01,
			BidDepth: 1000, AskDepth: 1000,
		},
		Timestamp: time.Now(),
	}
}

func testPaper(t *testing.T, data *stubData) *Paper {
	t.Helper()
	return NewPaper(data, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPaperFillsWithinLimit(t *testing.T) {
	data := &stubData{quote: quoteAt(0.45, 1000)}
	p := testPaper(t, data)
	ctx := context.Background()

	_, err := p.GetQuote(ctx, testMarket())
	require.NoError(t, err)

	ack, err := p.PlaceOrder(ctx, OrderRequest{
		TokenID: "tok-a", Side: domain.OrderSideBuy,
		Size: 90, Price: 0.455, IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStateFilled, ack.Status)
	assert.InDelta(t, 90, ack.FilledSize, 1e-9)
	assert.InDelta(t, 0.45, ack.AvgFillPrice, 1e-9)
}

func TestPaperPartialFillThenCompletes(t *testing.T) {
	data := &stubData{quote: quoteAt(0.45, 100)} // only 45 notional on offer
	p := testPaper(t, data)
	ctx := context.Background()

	_, err := p.GetQuote(ctx, testMarket())
	require.NoError(t, err)

	ack, err := p.PlaceOrder(ctx, OrderRequest{
		TokenID: "tok-a", Side: domain.OrderSideBuy,
		Size: 90, Price: 0.455, IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatePartiallyFilled, ack.Status)
	assert.InDelta(t, 45, ack.FilledSize, 1e-9)

	// Book refreshes with more depth; the next poll completes the fill.
	data.quote = quoteAt(0.45, 1000)
	_, err = p.GetQuote(ctx, testMarket())
	require.NoError(t, err)

	upd, err := p.OrderStatus(ctx, ack.VenueOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateFilled, upd.Status)
	assert.InDelta(t, 90, upd.FilledSize, 1e-9)
	assert.InDelta(t, 0.45, upd.AvgFillPrice, 1e-9)
}

func TestPaperRestsAboveLimit(t *testing.T) {
	data := &stubData{quote: quoteAt(0.48, 1000)}
	p := testPaper(t, data)
	ctx := context.Background()

	_, err := p.GetQuote(ctx, testMarket())
	require.NoError(t, err)

	ack, err := p.PlaceOrder(ctx, OrderRequest{
		TokenID: "tok-a", Side: domain.OrderSideBuy,
		Size: 90, Price: 0.455, IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateSubmitted, ack.Status)
	assert.Zero(t, ack.FilledSize)
}

func TestPaperIdempotentSubmission(t *testing.T) {
	data := &stubData{quote: quoteAt(0.45, 1000)}
	p := testPaper(t, data)
	ctx := context.Background()

	_, err := p.GetQuote(ctx, testMarket())
	require.NoError(t, err)

	req := OrderRequest{
		TokenID: "tok-a", Side: domain.OrderSideBuy,
		Size: 90, Price: 0.455, IdempotencyKey: "same-key",
	}
	first, err := p.PlaceOrder(ctx, req)
	require.NoError(t, err)
	second, err := p.PlaceOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.VenueOrderID, second.VenueOrderID)
	assert.InDelta(t, 90, second.FilledSize, 1e-9, "no double fill")
}

func TestPaperCancelRemainder(t *testing.T) {
	data := &stubData{quote: quoteAt(0.45, 100)}
	p := testPaper(t, data)
	ctx := context.Background()

	_, err := p.GetQuote(ctx, testMarket())
	require.NoError(t, err)

	ack, err := p.PlaceOrder(ctx, OrderRequest{
		TokenID: "tok-a", Side: domain.OrderSideBuy,
		Size: 90, Price: 0.455, IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatePartiallyFilled, ack.Status)

	require.NoError(t, p.CancelOrder(ctx, ack.VenueOrderID))

	upd, err := p.OrderStatus(ctx, ack.VenueOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCancelled, upd.Status)
	assert.InDelta(t, 45, upd.FilledSize, 1e-9, "partial fill survives the cancel")

	err = p.CancelOrder(ctx, ack.VenueOrderID)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestPaperRejectsBadRequest(t *testing.T) {
	p := testPaper(t, &stubData{})

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		TokenID: "tok-a", Side: domain.OrderSideBuy, Size: 0, Price: 0.5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidData)
}

func TestGetQuoteRejectsClosedMarket(t *testing.T) {
	c := NewClient("http://localhost:0", nil)

	closed := testMarket()
	closed.Status = domain.MarketStatusClosed
	_, err := c.GetQuote(context.Background(), closed)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestCheckHTTPStatusTaxonomy(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(http.StatusOK, nil))
	assert.ErrorIs(t, checkHTTPStatus(http.StatusNotFound, nil), domain.ErrNotFound)
	assert.ErrorIs(t, checkHTTPStatus(http.StatusUnauthorized, nil), domain.ErrFatal)
	assert.ErrorIs(t, checkHTTPStatus(http.StatusTooManyRequests, nil), domain.ErrRateLimited)
	assert.ErrorIs(t, checkHTTPStatus(http.StatusBadRequest, nil), domain.ErrInvalidData)
	assert.ErrorIs(t, checkHTTPStatus(http.StatusUnprocessableEntity, nil), domain.ErrOrderRejected)
	assert.ErrorIs(t, checkHTTPStatus(http.StatusBadGateway, nil), domain.ErrTransient)
}
