package domain

import "time"

// OpportunitySide indicates which outcome token the opportunity recommends
// buying.
type OpportunitySide string

const (
	SideTeamA OpportunitySide = "team_a"
	SideTeamB OpportunitySide = "team_b"
)

// Opportunity is an ephemeral mispricing signal. It is produced by the
// detector, consumed immediately by the risk manager within the same poll
// cycle, and discarded afterwards. Opportunities are never persisted as
// entities; acted-on ones leave a trace in the audit log only.
type Opportunity struct {
	Link        MatchMarketLink
	TokenID     string
	Side        OpportunitySide
	ModelProb   float64
	ImpliedProb float64
	Edge        float64 // signed, model minus implied for the chosen token
	Size        float64 // recommended capital commitment
	MaxPrice    float64 // worst acceptable fill price under slippage tolerance
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the opportunity is stale at the given time.
func (o Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
