package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position represents capital committed to one outcome of one linked market.
// Created by the order manager on a filled entry order; marked closed (never
// deleted) when the exit order fills.
type Position struct {
	ID            string
	LinkKey       string
	MatchID       string
	MarketID      string
	TokenID       string
	Side          OpportunitySide
	EntryPrice    float64
	Size          float64 // capital units committed at entry
	Shares        float64 // outcome tokens held
	StopLoss      float64 // exit trigger price, below entry for buys
	TakeProfit    float64
	CurrentPrice  float64
	UnrealizedPnL float64
	RealizedPnL   float64 // set on close
	FeesPaid      float64
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      *time.Time
	ExitPrice     *float64
}

// MarkPrice updates the unrealized P&L from the given current price wrt the
// entry. It does not touch realized P&L.
func (p *Position) MarkPrice(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Shares
}

// StopLossHit reports whether the price has crossed the stop level.
func (p Position) StopLossHit(price float64) bool {
	return p.StopLoss > 0 && price <= p.StopLoss
}

// TakeProfitHit reports whether the price has crossed the take-profit level.
func (p Position) TakeProfitHit(price float64) bool {
	return p.TakeProfit > 0 && price >= p.TakeProfit
}
