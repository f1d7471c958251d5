package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market represents a tradable match-winner market at the execution venue.
type Market struct {
	ID           string
	Question     string
	Slug         string
	Outcomes     [2]string // outcome labels, team A side first
	TokenIDs     [2]string // venue outcome token IDs
	Volume       float64
	Status       MarketStatus
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenQuote is the best bid/ask and available depth for one outcome token.
type TokenQuote struct {
	TokenID  string
	BestBid  float64
	BestAsk  float64
	BidDepth float64 // size available at the best bid
	AskDepth float64 // size available at the best ask
}

// Mid returns the mid price, or whichever side is present when the book is
// one-sided. A fully empty book yields 0.
func (t TokenQuote) Mid() float64 {
	switch {
	case t.BestBid > 0 && t.BestAsk > 0:
		return (t.BestBid + t.BestAsk) / 2
	case t.BestAsk > 0:
		return t.BestAsk
	default:
		return t.BestBid
	}
}

// MarketQuote is a fresh per-poll snapshot of both outcome tokens of a market.
type MarketQuote struct {
	MarketID  string
	TokenA    TokenQuote // team A outcome
	TokenB    TokenQuote // team B outcome
	Timestamp time.Time
}

// ImpliedProbability returns the market-implied probability of the team A
// outcome, derived from the token A mid price.
func (q MarketQuote) ImpliedProbability() float64 {
	return q.TokenA.Mid()
}
