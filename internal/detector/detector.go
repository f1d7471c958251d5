// Package detector flags mispricings between the modeled win probability and
// the market-implied probability of a linked match.
package detector

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/winprob"
)

// opportunityTTL is how long an emitted opportunity stays actionable. The
// risk manager discards anything older.
const opportunityTTL = 5 * time.Second

// signalCooldown suppresses repeat signals for the same market token after
// one has been emitted.
const signalCooldown = 10 * time.Second

// kellyFraction scales the full Kelly stake down to a quarter.
const kellyFraction = 0.25

// maxKellySize caps the Kelly recommendation at this fraction of available
// capital regardless of edge.
const maxKellySize = 0.25

// Config holds the detection thresholds.
type Config struct {
	MinEdge         float64 // minimum absolute edge to emit
	MaxSlippage     float64 // tolerated deviation from the implied price
	MaxPositionFrac float64 // cap on size as a fraction of available capital
}

// OpenPositionChecker reports whether a position is already open for a link.
// Implemented by the position tracker.
type OpenPositionChecker interface {
	HasOpen(linkKey string) bool
}

// Detector compares model output against market quotes and emits sized
// opportunities. It is safe for concurrent use across per-link workers.
type Detector struct {
	cfg       Config
	positions OpenPositionChecker
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // marketID:tokenID -> last emission
}

// New creates a Detector.
func New(cfg Config, positions OpenPositionChecker, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:       cfg,
		positions: positions,
		logger:    logger.With(slog.String("component", "detector")),
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
	}
}

// Detect evaluates one link against the current match state and quote. It
// returns an opportunity and true only when the edge clears the threshold,
// the book is deep enough to fill the intended size within the slippage
// tolerance, no position is already open for the link, and the token is not
// in cooldown. availableCapital is used for Kelly sizing only; the risk
// manager re-checks capital atomically at authorization time.
func (d *Detector) Detect(link domain.MatchMarketLink, state domain.MatchState, quote domain.MarketQuote, availableCapital float64) (domain.Opportunity, bool) {
	if d.positions != nil && d.positions.HasOpen(link.Key()) {
		return domain.Opportunity{}, false
	}

	modelProb := winprob.Estimate(state)
	impliedA := quote.TokenA.Mid()
	impliedB := quote.TokenB.Mid()
	if impliedA <= 0 || impliedA >= 1 {
		return domain.Opportunity{}, false
	}

	// Buy whichever outcome the market prices below the model.
	side := domain.SideTeamA
	token := quote.TokenA
	implied := impliedA
	prob := modelProb
	edge := modelProb - impliedA
	if impliedB > 0 && impliedB < 1 {
		if bEdge := (1 - modelProb) - impliedB; bEdge > edge {
			side = domain.SideTeamB
			token = quote.TokenB
			implied = impliedB
			prob = 1 - modelProb
			edge = bEdge
		}
	}
	if edge < d.cfg.MinEdge {
		return domain.Opportunity{}, false
	}

	now := d.now().UTC()
	if d.inCooldown(quote.MarketID, token.TokenID, now) {
		return domain.Opportunity{}, false
	}

	size := d.recommendSize(edge, implied, availableCapital)
	if size <= 0 {
		return domain.Opportunity{}, false
	}

	maxPrice := implied * (1 + d.cfg.MaxSlippage)
	if !depthSufficient(token, size, maxPrice) {
		d.logger.Debug("edge present but depth insufficient",
			slog.String("market_id", quote.MarketID),
			slog.String("token_id", token.TokenID),
			slog.Float64("edge", edge),
			slog.Float64("size", size),
		)
		return domain.Opportunity{}, false
	}

	d.markEmitted(quote.MarketID, token.TokenID, now)

	opp := domain.Opportunity{
		Link:        link,
		TokenID:     token.TokenID,
		Side:        side,
		ModelProb:   prob,
		ImpliedProb: implied,
		Edge:        edge,
		Size:        size,
		MaxPrice:    maxPrice,
		GeneratedAt: now,
		ExpiresAt:   now.Add(opportunityTTL),
	}
	d.logger.Info("opportunity detected",
		slog.String("match_id", link.MatchID),
		slog.String("market_id", link.MarketID),
		slog.String("side", string(side)),
		slog.Float64("model_prob", prob),
		slog.Float64("implied_prob", implied),
		slog.Float64("edge", edge),
		slog.Float64("size", size),
	)
	return opp, true
}

// recommendSize applies quarter-Kelly sizing capped by both the Kelly ceiling
// and the configured max position fraction.
func (d *Detector) recommendSize(edge, price, available float64) float64 {
	if available <= 0 || price >= 1 {
		return 0
	}
	kelly := edge / (1 - price) * kellyFraction
	if kelly > maxKellySize {
		kelly = maxKellySize
	}
	frac := kelly
	if d.cfg.MaxPositionFrac > 0 && frac > d.cfg.MaxPositionFrac {
		frac = d.cfg.MaxPositionFrac
	}
	size := available * frac
	if size < 1 {
		// Sub-dollar stakes are not worth venue fees.
		return 0
	}
	return math.Floor(size*100) / 100
}

// depthSufficient reports whether the ask side can absorb the intended size
// at a price within the slippage bound.
func depthSufficient(token domain.TokenQuote, size, maxPrice float64) bool {
	if token.BestAsk <= 0 || token.BestAsk > maxPrice {
		return false
	}
	notionalAvailable := token.BestAsk * token.AskDepth
	return notionalAvailable >= size
}

func (d *Detector) inCooldown(marketID, tokenID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSeen[marketID+":"+tokenID]
	return ok && now.Sub(last) < signalCooldown
}

func (d *Detector) markEmitted(marketID, tokenID string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen[marketID+":"+tokenID] = now

	// Opportunistic pruning keeps the map from growing across long runs.
	if len(d.lastSeen) > 4096 {
		for k, v := range d.lastSeen {
			if now.Sub(v) > signalCooldown {
				delete(d.lastSeen, k)
			}
		}
	}
}
