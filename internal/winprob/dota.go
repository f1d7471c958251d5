package winprob

import "github.com/alanyoungcy/esportsarb/internal/domain"

// Dota 2 feature weights. Gold leads are discounted by a comeback factor
// (buybacks and deathball swings make Dota leads less decisive than LoL
// ones), and a team sitting on a gold lead without tower progress late game
// gets damped toward 0.5 until it can break high ground.
const (
	dotaGoldWeightEarly = 0.10
	dotaGoldWeightMid   = 0.20
	dotaGoldWeightLate  = 0.30

	dotaComebackEarly = 0.85
	dotaComebackMid   = 0.75
	dotaComebackLate  = 0.60

	dotaKillWeight   = 0.005
	dotaTowerWeight  = 0.025
	dotaRoshanBonus  = 0.04
	dotaSeriesWeight = 0.04

	dotaGoldCap  = 0.35
	dotaKillCap  = 0.10
	dotaTowerCap = 0.15

	// highGroundTowerLead is the tower advantage below which a late-game lead
	// is considered unconverted.
	highGroundTowerLead = 6
	highGroundDamping   = 0.95

	dotaFloor = 0.08
	dotaCeil  = 0.92
)

func estimateDota(s domain.MatchState) float64 {
	p := 0.5

	goldWeight := dotaGoldWeightEarly
	comeback := dotaComebackEarly
	switch s.Phase() {
	case domain.PhaseMid:
		goldWeight = dotaGoldWeightMid
		comeback = dotaComebackMid
	case domain.PhaseLate:
		goldWeight = dotaGoldWeightLate
		comeback = dotaComebackLate
	}

	totalGold := s.GoldA + s.GoldB
	if totalGold > 0 {
		goldFactor := float64(s.GoldLead()) / float64(totalGold) * 2
		adj := goldFactor * (goldWeight / dotaGoldWeightMid) * comeback
		p += clamp(adj, -dotaGoldCap, dotaGoldCap)
	}

	p += clamp(float64(s.KillLead())*dotaKillWeight, -dotaKillCap, dotaKillCap)
	p += clamp(float64(s.TowerLead())*dotaTowerWeight, -dotaTowerCap, dotaTowerCap)

	if d := s.RoshansA - s.RoshansB; d > 0 {
		p += dotaRoshanBonus
	} else if d < 0 {
		p -= dotaRoshanBonus
	}

	p += float64(s.SeriesWinsA-s.SeriesWinsB) * dotaSeriesWeight

	// Late game, the side that is ahead on the scoreboard but has not broken
	// enough towers still has to win a high-ground fight.
	if s.Phase() == domain.PhaseLate {
		if p > 0.5 && s.TowerLead() < highGroundTowerLead {
			p = 0.5 + (p-0.5)*highGroundDamping
		} else if p < 0.5 && s.TowerLead() > -highGroundTowerLead {
			p = 0.5 + (p-0.5)*highGroundDamping
		}
	}

	return clamp(p, dotaFloor, dotaCeil)
}
