package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderKind distinguishes entry orders (opening a position) from exit orders
// (closing one).
type OrderKind string

const (
	OrderKindEntry OrderKind = "entry"
	OrderKindExit  OrderKind = "exit"
)

// OrderState tracks the order lifecycle. Created is the only initial state;
// Filled, Rejected, and Cancelled are terminal.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStateSubmitted       OrderState = "submitted"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateRejected        OrderState = "rejected"
	OrderStateCancelled       OrderState = "cancelled"
)

// legalTransitions encodes the allowed order state graph. No state may be
// skipped; terminal states have no outgoing edges.
var legalTransitions = map[OrderState][]OrderState{
	OrderStateCreated:         {OrderStateSubmitted, OrderStateRejected, OrderStateCancelled},
	OrderStateSubmitted:       {OrderStatePartiallyFilled, OrderStateFilled, OrderStateRejected, OrderStateCancelled},
	OrderStatePartiallyFilled: {OrderStateFilled, OrderStateRejected, OrderStateCancelled},
}

// Terminal reports whether the state has no outgoing transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateRejected, OrderStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal edge in
// the order state graph.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Order represents a single order driven through the lifecycle state machine.
// It is owned exclusively by the order manager until it reaches a terminal
// state, after which it is referenced read-only.
type Order struct {
	ID             string
	LinkKey        string // MatchMarketLink.Key of the originating link
	MarketID       string
	TokenID        string
	PositionID     string // empty for entry orders until the position exists
	Side           OrderSide
	Kind           OrderKind
	RequestedSize  float64
	RequestedPrice float64
	FilledSize     float64
	AvgFillPrice   float64
	State          OrderState
	VenueOrderID   string
	IdempotencyKey string
	RetryCount     int
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	ResolvedAt     *time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 {
	r := o.RequestedSize - o.FilledSize
	if r < 0 {
		return 0
	}
	return r
}
