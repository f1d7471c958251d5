// Package venue abstracts the prediction-market exchange: market discovery,
// order book quotes, and the order lifecycle endpoints. A REST client talks
// to the live venue; the paper venue simulates fills against live quotes.
package venue

import (
	"context"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// OrderRequest is a single order submission. Size is the notional stake in
// USD; Price is the limit price the order must not cross.
type OrderRequest struct {
	TokenID        string
	Side           domain.OrderSide
	Size           float64
	Price          float64
	IdempotencyKey string
}

// OrderAck is the venue's synchronous response to a submission.
type OrderAck struct {
	VenueOrderID string
	Status       domain.OrderState
	FilledSize   float64
	AvgFillPrice float64
	Message      string
}

// OrderUpdate is the result of polling an order's status.
type OrderUpdate struct {
	VenueOrderID string
	Status       domain.OrderState
	FilledSize   float64
	AvgFillPrice float64
}

// Venue is the full exchange surface the engine depends on.
type Venue interface {
	MarketData
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	OrderStatus(ctx context.Context, venueOrderID string) (OrderUpdate, error)
	CancelOrder(ctx context.Context, venueOrderID string) error
}

// MarketData is the read-only subset used for discovery and quoting.
type MarketData interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	GetQuote(ctx context.Context, market domain.Market) (domain.MarketQuote, error)
}
