// Package telemetry fetches live match state from the esports data API.
package telemetry

import (
	"context"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Provider supplies live match discovery and per-match state snapshots.
type Provider interface {
	ListLiveMatches(ctx context.Context) ([]domain.MatchState, error)
	GetMatchState(ctx context.Context, matchID string) (domain.MatchState, error)
}
