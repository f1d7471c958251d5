// Package winprob computes win-probability estimates for live esports
// matches. Models are deterministic hand-tuned scoring functions over a match
// snapshot; they are pure, total, and never fail the pipeline. Malformed
// inputs are clamped rather than rejected.
package winprob

import (
	"math"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Output bounds. Models never assert certainty.
const (
	floorProb = 0.01
	ceilProb  = 0.99
)

// Estimate returns the modeled probability that team A wins the current game,
// dispatching on the snapshot's game type. Unknown game types fall back to a
// coin flip so the pipeline keeps moving.
func Estimate(state domain.MatchState) float64 {
	var p float64
	switch state.Game {
	case domain.GameLeagueOfLegends:
		p = estimateLoL(sanitize(state))
	case domain.GameDota2:
		p = estimateDota(sanitize(state))
	default:
		p = 0.5
	}
	return clamp(p, floorProb, ceilProb)
}

// sanitize clamps malformed snapshot fields so the models stay total. A bad
// estimate is strictly preferable to a stalled engine.
func sanitize(s domain.MatchState) domain.MatchState {
	if s.ElapsedSec < 0 {
		s.ElapsedSec = 0
	}
	s.KillsA = clampInt(s.KillsA, 0, 500)
	s.KillsB = clampInt(s.KillsB, 0, 500)
	s.GoldA = clampInt(s.GoldA, 0, 500_000)
	s.GoldB = clampInt(s.GoldB, 0, 500_000)
	s.TowersA = clampInt(s.TowersA, 0, 11)
	s.TowersB = clampInt(s.TowersB, 0, 11)
	s.DragonsA = clampInt(s.DragonsA, 0, 10)
	s.DragonsB = clampInt(s.DragonsB, 0, 10)
	s.RoshansA = clampInt(s.RoshansA, 0, 10)
	s.RoshansB = clampInt(s.RoshansB, 0, 10)
	s.SeriesWinsA = clampInt(s.SeriesWinsA, 0, 4)
	s.SeriesWinsB = clampInt(s.SeriesWinsB, 0, 4)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.5
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
