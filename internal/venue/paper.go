package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Paper simulates the order endpoints against live market data. Discovery
// and quotes pass through to the wrapped data source; orders fill from the
// most recently observed top of book and never leave the process.
type Paper struct {
	data   MarketData
	logger *slog.Logger

	mu     sync.Mutex
	quotes map[string]domain.TokenQuote // tokenID -> last observed quote
	orders map[string]*paperOrder       // venue order ID -> order
	byIdem map[string]string            // idempotency key -> venue order ID
}

type paperOrder struct {
	req    OrderRequest
	status domain.OrderState
	filled float64
	avg    float64
}

var _ Venue = (*Paper)(nil)

// NewPaper creates a paper venue over the given market data source.
func NewPaper(data MarketData, logger *slog.Logger) *Paper {
	return &Paper{
		data:   data,
		logger: logger.With(slog.String("component", "paper_venue")),
		quotes: make(map[string]domain.TokenQuote),
		orders: make(map[string]*paperOrder),
		byIdem: make(map[string]string),
	}
}

// ListMarkets passes through to the data source.
func (p *Paper) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return p.data.ListMarkets(ctx)
}

// GetQuote passes through to the data source and records the top of book so
// later fills simulate against real prices.
func (p *Paper) GetQuote(ctx context.Context, market domain.Market) (domain.MarketQuote, error) {
	quote, err := p.data.GetQuote(ctx, market)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	p.mu.Lock()
	p.quotes[quote.TokenA.TokenID] = quote.TokenA
	p.quotes[quote.TokenB.TokenID] = quote.TokenB
	p.mu.Unlock()
	return quote, nil
}

// PlaceOrder simulates a limit order. Duplicate idempotency keys return the
// original acknowledgement without creating a second order.
func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if req.Size <= 0 || req.Price <= 0 || req.Price >= 1 {
		return OrderAck{}, fmt.Errorf("paper: size %.2f price %.4f: %w", req.Size, req.Price, domain.ErrInvalidData)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.IdempotencyKey != "" {
		if id, ok := p.byIdem[req.IdempotencyKey]; ok {
			p.logger.InfoContext(ctx, "duplicate submission deduplicated",
				slog.String("venue_order_id", id),
				slog.String("idempotency_key", req.IdempotencyKey),
			)
			return p.ackLocked(id), nil
		}
	}

	id := uuid.New().String()
	o := &paperOrder{req: req, status: domain.OrderStateSubmitted}
	p.orders[id] = o
	if req.IdempotencyKey != "" {
		p.byIdem[req.IdempotencyKey] = id
	}

	p.matchLocked(o)
	p.logger.InfoContext(ctx, "paper order placed",
		slog.String("venue_order_id", id),
		slog.String("token_id", req.TokenID),
		slog.String("side", string(req.Side)),
		slog.Float64("size", req.Size),
		slog.Float64("filled", o.filled),
		slog.String("status", string(o.status)),
	)
	return p.ackLocked(id), nil
}

// OrderStatus re-checks any resting remainder against the latest observed
// book before reporting, so orders can fill between polls.
func (p *Paper) OrderStatus(ctx context.Context, venueOrderID string) (OrderUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[venueOrderID]
	if !ok {
		return OrderUpdate{}, fmt.Errorf("paper: order %s: %w", venueOrderID, domain.ErrNotFound)
	}
	if !o.status.Terminal() {
		p.matchLocked(o)
	}
	return OrderUpdate{
		VenueOrderID: venueOrderID,
		Status:       o.status,
		FilledSize:   o.filled,
		AvgFillPrice: o.avg,
	}, nil
}

// CancelOrder cancels the unfilled remainder of a resting order.
func (p *Paper) CancelOrder(ctx context.Context, venueOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[venueOrderID]
	if !ok {
		return fmt.Errorf("paper: order %s: %w", venueOrderID, domain.ErrNotFound)
	}
	if o.status.Terminal() {
		return fmt.Errorf("paper: order %s already %s: %w", venueOrderID, o.status, domain.ErrOrderRejected)
	}
	o.status = domain.OrderStateCancelled
	return nil
}

// matchLocked fills as much of the order as the recorded top of book allows
// without crossing the limit price.
func (p *Paper) matchLocked(o *paperOrder) {
	quote, ok := p.quotes[o.req.TokenID]
	if !ok {
		return
	}

	price, depth := quote.BestAsk, quote.AskDepth
	crosses := price > 0 && price <= o.req.Price
	if o.req.Side == domain.OrderSideSell {
		price, depth = quote.BestBid, quote.BidDepth
		crosses = price > 0 && price >= o.req.Price
	}
	if !crosses {
		return
	}

	remaining := o.req.Size - o.filled
	fillable := price * depth
	fill := remaining
	if fillable < remaining {
		fill = fillable
	}
	if fill <= 0 {
		return
	}

	// Volume-weighted average across partial fills.
	o.avg = (o.avg*o.filled + price*fill) / (o.filled + fill)
	o.filled += fill
	if o.req.Size-o.filled < 0.01 {
		o.filled = o.req.Size
		o.status = domain.OrderStateFilled
	} else {
		o.status = domain.OrderStatePartiallyFilled
	}
}

func (p *Paper) ackLocked(id string) OrderAck {
	o := p.orders[id]
	return OrderAck{
		VenueOrderID: id,
		Status:       o.status,
		FilledSize:   o.filled,
		AvgFillPrice: o.avg,
	}
}
