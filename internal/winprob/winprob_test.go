package winprob

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func lolState(mutate func(*domain.MatchState)) domain.MatchState {
	s := domain.MatchState{
		MatchID:    "m1",
		Game:       domain.GameLeagueOfLegends,
		TeamA:      "T1",
		TeamB:      "Gen.G",
		ElapsedSec: 1200,
		GoldA:      32_000,
		GoldB:      30_000,
	}
	if mutate != nil {
		mutate(&s)
	}
	return s
}

func TestEstimateEvenGameIsNearCoinFlip(t *testing.T) {
	s := lolState(func(s *domain.MatchState) {
		s.GoldA = 30_000
		s.GoldB = 30_000
	})
	assert.InDelta(t, 0.5, Estimate(s), 0.001)
}

func TestEstimateFavorsLeadingTeam(t *testing.T) {
	ahead := lolState(func(s *domain.MatchState) {
		s.GoldA = 40_000
		s.GoldB = 28_000
		s.KillsA = 15
		s.KillsB = 4
		s.TowersA = 7
		s.TowersB = 1
	})
	behind := lolState(func(s *domain.MatchState) {
		s.GoldA = 28_000
		s.GoldB = 40_000
		s.KillsA = 4
		s.KillsB = 15
		s.TowersA = 1
		s.TowersB = 7
	})

	pa := Estimate(ahead)
	pb := Estimate(behind)
	assert.Greater(t, pa, 0.75)
	assert.Less(t, pb, 0.25)
	// Mirrored states produce mirrored probabilities.
	assert.InDelta(t, pa, 1-pb, 0.001)
}

func TestEstimateGoldWeightGrowsWithPhase(t *testing.T) {
	base := func(elapsed int) domain.MatchState {
		return lolState(func(s *domain.MatchState) {
			s.ElapsedSec = elapsed
			s.GoldA = 36_000
			s.GoldB = 30_000
		})
	}
	early := Estimate(base(300))
	mid := Estimate(base(1200))
	late := Estimate(base(2400))
	assert.Less(t, early, mid)
	assert.Less(t, mid, late)
}

func TestEstimateBaronBonus(t *testing.T) {
	without := lolState(nil)
	with := lolState(func(s *domain.MatchState) { s.BaronTeamA = true })
	assert.InDelta(t, 0.05, Estimate(with)-Estimate(without), 0.001)
}

func TestEstimateSeriesMomentum(t *testing.T) {
	s := lolState(func(s *domain.MatchState) { s.SeriesWinsA = 1 })
	assert.Greater(t, Estimate(s), Estimate(lolState(nil)))
}

func TestEstimateDotaComebackDamping(t *testing.T) {
	mk := func(game domain.Game) domain.MatchState {
		return domain.MatchState{
			MatchID:    "m2",
			Game:       game,
			ElapsedSec: 2400,
			GoldA:      60_000,
			GoldB:      45_000,
			TowersA:    8,
			TowersB:    2,
		}
	}
	// The same resource lead counts for less in Dota than in LoL.
	assert.Less(t, Estimate(mk(domain.GameDota2)), Estimate(mk(domain.GameLeagueOfLegends)))
}

func TestEstimateDotaHighGroundDamping(t *testing.T) {
	mk := func(towersA int) domain.MatchState {
		return domain.MatchState{
			MatchID:    "m3",
			Game:       domain.GameDota2,
			ElapsedSec: 2400,
			GoldA:      55_000,
			GoldB:      45_000,
			TowersA:    towersA,
			TowersB:    0,
		}
	}
	// A late-game lead without tower progress is worth less than the same
	// lead with high ground already broken.
	assert.Less(t, Estimate(mk(3)), Estimate(mk(9)))
}

func TestEstimateBoundedForAllInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	games := []domain.Game{domain.GameLeagueOfLegends, domain.GameDota2, domain.Game("unknown")}

	for i := 0; i < 10_000; i++ {
		s := domain.MatchState{
			Game:        games[rng.Intn(len(games))],
			ElapsedSec:  rng.Intn(10_000) - 2_000,
			KillsA:      rng.Intn(2_000) - 1_000,
			KillsB:      rng.Intn(2_000) - 1_000,
			GoldA:       rng.Intn(2_000_000) - 1_000_000,
			GoldB:       rng.Intn(2_000_000) - 1_000_000,
			TowersA:     rng.Intn(100) - 50,
			TowersB:     rng.Intn(100) - 50,
			DragonsA:    rng.Intn(40) - 20,
			DragonsB:    rng.Intn(40) - 20,
			RoshansA:    rng.Intn(40) - 20,
			RoshansB:    rng.Intn(40) - 20,
			SeriesWinsA: rng.Intn(20) - 10,
			SeriesWinsB: rng.Intn(20) - 10,
			BaronTeamA:  rng.Intn(2) == 0,
			BaronTeamB:  rng.Intn(2) == 0,
		}
		p := Estimate(s)
		require.GreaterOrEqual(t, p, 0.01, "input %+v", s)
		require.LessOrEqual(t, p, 0.99, "input %+v", s)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	for _, game := range []domain.Game{domain.GameLeagueOfLegends, domain.GameDota2} {
		t.Run(string(game), func(t *testing.T) {
			s := domain.MatchState{
				Game:       game,
				ElapsedSec: 1500,
				GoldA:      31_337,
				GoldB:      29_001,
				KillsA:     9,
				KillsB:     7,
				TowersA:    4,
				TowersB:    2,
			}
			first := Estimate(s)
			for i := 0; i < 100; i++ {
				require.Equal(t, first, Estimate(s))
			}
		})
	}
}

func TestEstimateUnknownGameIsCoinFlip(t *testing.T) {
	s := domain.MatchState{Game: domain.Game("starcraft"), GoldA: 99_999}
	assert.Equal(t, 0.5, Estimate(s))
}

func ExampleEstimate() {
	p := Estimate(domain.MatchState{
		Game:       domain.GameLeagueOfLegends,
		ElapsedSec: 2100,
		GoldA:      48_000,
		GoldB:      39_000,
		TowersA:    6,
		TowersB:    2,
	})
	fmt.Printf("%.2f", p)
	// Output: 0.91
}
