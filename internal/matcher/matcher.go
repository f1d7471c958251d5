// Package matcher correlates live matches with tradable match-winner markets.
// Links are recomputed from scratch every discovery cycle so the engine
// tolerates market churn without incremental patching.
package matcher

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// minConfidence is the score below which no link is emitted.
const minConfidence = 0.6

// Confidence levels for alias-table hits.
const (
	bothTeamsScore = 1.0
	oneTeamScore   = 0.7
)

// recentActivityWindow is how recently a market must have traded to earn the
// temporal proximity bonus.
const recentActivityWindow = 2 * time.Hour

const activityBonus = 0.05

// teamAliases maps a canonical franchise name to the spellings seen in market
// questions. Lookups are done on normalized text.
var teamAliases = map[string][]string{
	// League of Legends
	"t1":          {"t1", "skt", "skt t1", "sk telecom"},
	"geng":        {"geng", "gen g", "gen.g"},
	"dwg":         {"dwg", "damwon", "dplus", "dk"},
	"fnatic":      {"fnatic", "fnc"},
	"g2":          {"g2", "g2 esports"},
	"cloud9":      {"cloud9", "c9", "cloud 9"},
	"team liquid": {"team liquid", "liquid", "tl"},
	"jdg":         {"jdg", "jd gaming"},
	"weibo":       {"weibo", "wbg", "weibo gaming"},
	"bilibili":    {"bilibili", "blg", "bilibili gaming"},
	// Dota 2
	"og":          {"og"},
	"team spirit": {"team spirit", "spirit"},
	"lgd":         {"lgd", "psg lgd", "psg.lgd"},
	"eg":          {"eg", "evil geniuses"},
	"secret":      {"secret", "team secret"},
	"nigma":       {"nigma", "nigma galaxy"},
	"tundra":      {"tundra", "tundra esports"},
	"gaimin":      {"gaimin", "gaimin gladiators"},
}

// Matcher scores candidate markets against live matches by team-name
// similarity and recency of market activity.
type Matcher struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Matcher.
func New(logger *slog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With(slog.String("component", "matcher")),
		now:    time.Now,
	}
}

// Resolve scores every active candidate market against every live match and
// returns one link per match that clears the confidence threshold. Ties are
// broken by highest confidence, then most recently active market. Matches
// with no market above threshold are silently skipped.
func (m *Matcher) Resolve(matches []domain.MatchState, markets []domain.Market) []domain.MatchMarketLink {
	now := m.now().UTC()

	var links []domain.MatchMarketLink
	for _, match := range matches {
		best, ok := m.bestMarket(match, markets, now)
		if !ok {
			continue
		}
		links = append(links, best)
	}
	return links
}

func (m *Matcher) bestMarket(match domain.MatchState, markets []domain.Market, now time.Time) (domain.MatchMarketLink, bool) {
	type scored struct {
		market     domain.Market
		confidence float64
	}

	var candidates []scored
	for _, mkt := range markets {
		if mkt.Status != domain.MarketStatusActive {
			continue
		}
		score := m.Score(match, mkt)
		if !mkt.LastActiveAt.IsZero() && now.Sub(mkt.LastActiveAt) < recentActivityWindow {
			score += activityBonus
		}
		if score > 1 {
			score = 1
		}
		if score < minConfidence {
			continue
		}
		candidates = append(candidates, scored{market: mkt, confidence: score})
	}
	if len(candidates) == 0 {
		return domain.MatchMarketLink{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].market.LastActiveAt.After(candidates[j].market.LastActiveAt)
	})

	top := candidates[0]
	m.logger.Debug("match linked to market",
		slog.String("match_id", match.MatchID),
		slog.String("market_id", top.market.ID),
		slog.Float64("confidence", top.confidence),
	)
	return domain.MatchMarketLink{
		MatchID:       match.MatchID,
		MarketID:      top.market.ID,
		Confidence:    top.confidence,
		EstablishedAt: now,
	}, true
}

// Score rates how well a market's question matches the two team names of a
// match. Alias-table hits score 1.0 (both teams) or 0.7 (one team); when
// neither alias is found the score falls back to averaged fuzzy similarity.
func (m *Matcher) Score(match domain.MatchState, market domain.Market) float64 {
	question := normalize(market.Question)

	foundA := teamInText(match.TeamA, question)
	foundB := teamInText(match.TeamB, question)

	switch {
	case foundA && foundB:
		return bothTeamsScore
	case foundA || foundB:
		return oneTeamScore
	}

	simA := bestSimilarity(match.TeamA, market.Question)
	simB := bestSimilarity(match.TeamB, market.Question)
	return (simA + simB) / 2
}

// teamInText reports whether any alias of the team appears in the normalized
// text.
func teamInText(team, text string) bool {
	for _, alias := range aliasesFor(team) {
		if alias != "" && strings.Contains(text, alias) {
			return true
		}
	}
	return false
}

// aliasesFor returns the alias set for a team name, falling back to the
// normalized name itself when the franchise is unknown.
func aliasesFor(team string) []string {
	norm := normalize(team)
	if aliases, ok := teamAliases[norm]; ok {
		return aliases
	}
	for canonical, aliases := range teamAliases {
		for _, alias := range aliases {
			if alias == norm {
				return teamAliases[canonical]
			}
		}
	}
	return []string{norm}
}

// bestSimilarity returns the highest bigram similarity between any alias of
// the team and the target text.
func bestSimilarity(team, text string) float64 {
	normText := normalize(text)
	best := 0.0
	for _, alias := range aliasesFor(team) {
		if s := bigramSimilarity(alias, normText); s > best {
			best = s
		}
	}
	return best
}

// normalize lowercases and strips punctuation so alias lookups are stable
// across question formats ("Gen.G vs T1 - Winner?" etc).
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace && b.Len() > 0 {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// bigramSimilarity computes the Sorensen-Dice coefficient over character
// bigrams of the two strings.
func bigramSimilarity(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	overlap := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(ba)+len(bb))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
