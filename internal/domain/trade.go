package domain

import "time"

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonManual     ExitReason = "manual"
	ExitReasonSettlement ExitReason = "settlement"
)

// Trade is the immutable round-trip record written when a position closes.
// Rows are append-only and eventually archived to cold storage.
type Trade struct {
	ID          int64
	PositionID  string
	LinkKey     string
	MatchID     string
	MarketID    string
	TokenID     string
	Side        OpportunitySide
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	Shares      float64
	RealizedPnL float64
	FeesPaid    float64
	ExitReason  ExitReason
	OpenedAt    time.Time
	ClosedAt    time.Time
}
