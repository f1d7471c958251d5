package domain

import "time"

// Game identifies the esports title a match belongs to.
type Game string

const (
	GameLeagueOfLegends Game = "lol"
	GameDota2           Game = "dota2"
)

// GamePhase buckets elapsed game time into the stages used by the
// win-probability models.
type GamePhase string

const (
	PhaseEarly GamePhase = "early"
	PhaseMid   GamePhase = "mid"
	PhaseLate  GamePhase = "late"
)

// Phase boundaries in seconds of elapsed game time.
const (
	midGameStartSec  = 900
	lateGameStartSec = 1800
)

// MatchState is an immutable snapshot of a live match as reported by the
// telemetry provider. A new snapshot supersedes the previous one each poll;
// snapshots are never mutated in place.
type MatchState struct {
	MatchID    string
	Game       Game
	TeamA      string
	TeamB      string
	ElapsedSec int

	// Per-team counters, team A first.
	KillsA  int
	KillsB  int
	GoldA   int
	GoldB   int
	TowersA int
	TowersB int

	// Big neutral objectives. LoL: dragons + baron holder. Dota: roshan.
	DragonsA   int
	DragonsB   int
	BaronTeamA bool // team A holds the most recent baron buff
	BaronTeamB bool
	RoshansA   int
	RoshansB   int

	// Best-of series score, games already won.
	SeriesWinsA int
	SeriesWinsB int

	FetchedAt time.Time
}

// Phase returns the game phase for the snapshot's elapsed time. Negative
// elapsed times are treated as early game.
func (m MatchState) Phase() GamePhase {
	switch {
	case m.ElapsedSec >= lateGameStartSec:
		return PhaseLate
	case m.ElapsedSec >= midGameStartSec:
		return PhaseMid
	default:
		return PhaseEarly
	}
}

// GoldLead returns team A's gold advantage (negative when behind).
func (m MatchState) GoldLead() int { return m.GoldA - m.GoldB }

// KillLead returns team A's kill advantage.
func (m MatchState) KillLead() int { return m.KillsA - m.KillsB }

// TowerLead returns team A's tower advantage.
func (m MatchState) TowerLead() int { return m.TowersA - m.TowersB }
