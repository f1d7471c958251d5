package matcher

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func activeMarket(id, question string) domain.Market {
	return domain.Market{
		ID:       id,
		Question: question,
		Status:   domain.MarketStatusActive,
	}
}

func lolMatch(id, teamA, teamB string) domain.MatchState {
	return domain.MatchState{
		MatchID: id,
		Game:    domain.GameLeagueOfLegends,
		TeamA:   teamA,
		TeamB:   teamB,
	}
}

func TestScoreBothTeamsFound(t *testing.T) {
	m := New(testLogger())
	score := m.Score(
		lolMatch("m1", "T1", "Gen.G"),
		activeMarket("mk1", "Will T1 beat Gen.G in the LCK final?"),
	)
	assert.Equal(t, 1.0, score)
}

func TestScoreAliasResolution(t *testing.T) {
	m := New(testLogger())
	// "SKT" is an alias of T1; "C9" of Cloud9.
	score := m.Score(
		lolMatch("m1", "SKT", "Cloud9"),
		activeMarket("mk1", "SKT T1 vs C9: who wins?"),
	)
	assert.Equal(t, 1.0, score)
}

func TestScoreOneTeamFound(t *testing.T) {
	m := New(testLogger())
	score := m.Score(
		lolMatch("m1", "T1", "Unknown Roster"),
		activeMarket("mk1", "Will T1 win their next match?"),
	)
	assert.Equal(t, 0.7, score)
}

func TestScoreFuzzyFallback(t *testing.T) {
	m := New(testLogger())
	// Neither name is in the alias table nor a substring; fuzzy similarity
	// over bigrams still picks up the near-identical spelling.
	high := m.Score(
		lolMatch("m1", "Shanghai Dragons", "Seoul Dynasty"),
		activeMarket("mk1", "shanghai dragons seoul dynasty"),
	)
	low := m.Score(
		lolMatch("m1", "Shanghai Dragons", "Seoul Dynasty"),
		activeMarket("mk2", "US presidential election 2028"),
	)
	assert.Greater(t, high, 0.9)
	assert.Less(t, low, 0.3)
}

func TestResolveSkipsBelowThreshold(t *testing.T) {
	m := New(testLogger())
	links := m.Resolve(
		[]domain.MatchState{lolMatch("m1", "T1", "Gen.G")},
		[]domain.Market{activeMarket("mk1", "Will it rain in London tomorrow?")},
	)
	assert.Empty(t, links)
}

func TestResolveSkipsInactiveMarkets(t *testing.T) {
	m := New(testLogger())
	closed := activeMarket("mk1", "T1 vs Gen.G winner")
	closed.Status = domain.MarketStatusClosed

	links := m.Resolve(
		[]domain.MatchState{lolMatch("m1", "T1", "Gen.G")},
		[]domain.Market{closed},
	)
	assert.Empty(t, links)
}

func TestResolvePrefersHigherConfidence(t *testing.T) {
	m := New(testLogger())
	links := m.Resolve(
		[]domain.MatchState{lolMatch("m1", "T1", "Gen.G")},
		[]domain.Market{
			activeMarket("partial", "Will T1 win the LCK?"),
			activeMarket("full", "T1 vs Gen.G match winner"),
		},
	)
	require.Len(t, links, 1)
	assert.Equal(t, "full", links[0].MarketID)
	assert.Equal(t, "m1", links[0].MatchID)
	assert.GreaterOrEqual(t, links[0].Confidence, 1.0)
}

func TestResolveTieBreaksOnRecentActivity(t *testing.T) {
	m := New(testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale := activeMarket("stale", "T1 vs Gen.G winner")
	stale.LastActiveAt = now.Add(-48 * time.Hour)
	fresh := activeMarket("fresh", "T1 vs Gen.G winner")
	fresh.LastActiveAt = now.Add(-10 * time.Minute)

	links := m.Resolve(
		[]domain.MatchState{lolMatch("m1", "T1", "Gen.G")},
		[]domain.Market{stale, fresh},
	)
	require.Len(t, links, 1)
	assert.Equal(t, "fresh", links[0].MarketID)
}

func TestResolveOneLinkPerMatch(t *testing.T) {
	m := New(testLogger())
	links := m.Resolve(
		[]domain.MatchState{
			lolMatch("m1", "T1", "Gen.G"),
			lolMatch("m2", "OG", "Team Spirit"),
		},
		[]domain.Market{
			activeMarket("lck", "T1 vs Gen.G match winner"),
			activeMarket("ti", "OG vs Team Spirit grand final winner"),
		},
	)
	require.Len(t, links, 2)
	byMatch := map[string]string{}
	for _, l := range links {
		byMatch[l.MatchID] = l.MarketID
	}
	assert.Equal(t, "lck", byMatch["m1"])
	assert.Equal(t, "ti", byMatch["m2"])
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Gen.G", "gen g"},
		{"  T1 vs Gen.G - Winner? ", "t1 vs gen g winner"},
		{"PSG.LGD", "psg lgd"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, normalize(c.in))
	}
}
