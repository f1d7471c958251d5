package winprob

import "github.com/alanyoungcy/esportsarb/internal/domain"

// League of Legends feature weights. Gold matters more as the game goes on;
// kills and structures carry fixed per-unit weight; baron is a single large
// bonus for the team holding the current buff.
const (
	lolGoldWeightEarly = 0.15
	lolGoldWeightMid   = 0.25
	lolGoldWeightLate  = 0.35

	lolKillWeight   = 0.008
	lolTowerWeight  = 0.03
	lolDragonWeight = 0.02
	lolBaronBonus   = 0.05
	lolSeriesWeight = 0.05

	lolGoldCap   = 0.40
	lolKillCap   = 0.15
	lolTowerCap  = 0.20
	lolDragonCap = 0.08

	lolFloor = 0.05
	lolCeil  = 0.95
)

func estimateLoL(s domain.MatchState) float64 {
	p := 0.5

	goldWeight := lolGoldWeightEarly
	switch s.Phase() {
	case domain.PhaseMid:
		goldWeight = lolGoldWeightMid
	case domain.PhaseLate:
		goldWeight = lolGoldWeightLate
	}

	totalGold := s.GoldA + s.GoldB
	if totalGold > 0 {
		goldFactor := float64(s.GoldLead()) / float64(totalGold) * 2
		adj := goldFactor * (goldWeight / lolGoldWeightMid)
		p += clamp(adj, -lolGoldCap, lolGoldCap)
	}

	p += clamp(float64(s.KillLead())*lolKillWeight, -lolKillCap, lolKillCap)
	p += clamp(float64(s.TowerLead())*lolTowerWeight, -lolTowerCap, lolTowerCap)
	p += clamp(float64(s.DragonsA-s.DragonsB)*lolDragonWeight, -lolDragonCap, lolDragonCap)

	if s.BaronTeamA && !s.BaronTeamB {
		p += lolBaronBonus
	} else if s.BaronTeamB && !s.BaronTeamA {
		p -= lolBaronBonus
	}

	p += float64(s.SeriesWinsA-s.SeriesWinsB) * lolSeriesWeight

	return clamp(p, lolFloor, lolCeil)
}
