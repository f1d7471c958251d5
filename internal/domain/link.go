package domain

import "time"

// MatchMarketLink is an established correspondence between a live match and a
// tradable market. Links are recomputed from scratch each discovery cycle and
// are invalidated when the match ends or the market closes.
type MatchMarketLink struct {
	MatchID       string
	MarketID      string
	Confidence    float64
	EstablishedAt time.Time
}

// Key returns the canonical identifier for the link, used for open-position
// bookkeeping and idempotency key derivation.
func (l MatchMarketLink) Key() string {
	return l.MatchID + ":" + l.MarketID
}
