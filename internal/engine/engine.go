// Package engine runs the decision pipeline: telemetry and market discovery
// feed the matcher, each linked match is evaluated concurrently every poll
// cycle, and authorized opportunities flow through the order manager into
// tracked positions.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/esportsarb/internal/detector"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/matcher"
	"github.com/alanyoungcy/esportsarb/internal/order"
	"github.com/alanyoungcy/esportsarb/internal/position"
	"github.com/alanyoungcy/esportsarb/internal/risk"
	"github.com/alanyoungcy/esportsarb/internal/telemetry"
	"github.com/alanyoungcy/esportsarb/internal/venue"
)

// Config holds the loop cadences.
type Config struct {
	PollInterval        time.Duration // decision cycle
	DiscoveryInterval   time.Duration // market and match discovery
	LinkRefreshInterval time.Duration // match-market link recompute
	DrainTimeout        time.Duration // budget for the final cycle on shutdown
	ExitSlippage        float64       // price concession on exit orders
}

// Engine wires the pipeline together and owns the shared link table.
type Engine struct {
	cfg       Config
	telemetry telemetry.Provider
	venue     venue.Venue
	matcher   *matcher.Matcher
	detector  *detector.Detector
	risk      *risk.Manager
	orders    *order.Manager
	positions *position.Tracker
	logger    *slog.Logger

	// Optional collaborators; nil disables the feature.
	audit   domain.AuditStore
	signals domain.SignalBus
	quotes  domain.QuoteCache

	mu      sync.RWMutex
	markets []domain.Market
	matches map[string]domain.MatchState
	links   []domain.MatchMarketLink

	// First fatal collaborator error. Dead credentials cannot heal with
	// retries, so the loops stop and Run surfaces it to the operator.
	fatalMu sync.Mutex
	fatal   error

	now func() time.Time
}

// New creates an Engine. audit, signals, and quotes may be nil; the engine
// degrades to logging only.
func New(
	cfg Config,
	tp telemetry.Provider,
	v venue.Venue,
	m *matcher.Matcher,
	d *detector.Detector,
	r *risk.Manager,
	om *order.Manager,
	pt *position.Tracker,
	logger *slog.Logger,
) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 5 * time.Minute
	}
	if cfg.LinkRefreshInterval <= 0 {
		cfg.LinkRefreshInterval = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 15 * time.Second
	}
	return &Engine{
		cfg:       cfg,
		telemetry: tp,
		venue:     v,
		matcher:   m,
		detector:  d,
		risk:      r,
		orders:    om,
		positions: pt,
		logger:    logger.With(slog.String("component", "engine")),
		matches:   make(map[string]domain.MatchState),
		now:       time.Now,
	}
}

// SetAudit attaches the audit log.
func (e *Engine) SetAudit(a domain.AuditStore) { e.audit = a }

// SetSignalBus attaches the event bus for live consumers.
func (e *Engine) SetSignalBus(s domain.SignalBus) { e.signals = s }

// SetQuoteCache attaches the shared quote cache.
func (e *Engine) SetQuoteCache(q domain.QuoteCache) { e.quotes = q }

// Run reconciles persisted state, then drives the three loops until the
// context is cancelled. The decision loop finishes its in-flight cycle
// before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.reconcile(ctx); err != nil {
		return fmt.Errorf("engine: reconcile: %w", err)
	}

	// Prime discovery and links so the first decision cycle has work.
	e.discover(ctx)
	if err := e.fatalErr(); err != nil {
		return fmt.Errorf("engine: halting: %w", err)
	}
	e.refreshLinks(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.discoveryLoop(gctx) })
	g.Go(func() error { return e.linkLoop(gctx) })
	g.Go(func() error { return e.decisionLoop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reconcile resolves orders left non-terminal by a previous run and
// rebuilds the capital ledger from open positions before any new decision
// is admitted.
func (e *Engine) reconcile(ctx context.Context) error {
	resolved, err := e.orders.Reconcile(ctx)
	if err != nil {
		return err
	}
	for _, o := range resolved {
		if o.Kind == domain.OrderKindEntry && o.FilledSize > 0 && o.PositionID == "" {
			// A fill from a previous run with no position on record. The
			// stake is acknowledged in the audit log for manual follow-up.
			e.logger.WarnContext(ctx, "reconciled entry fill without position",
				slog.String("order_id", o.ID),
				slog.Float64("filled", o.FilledSize),
			)
			e.auditLog(ctx, "reconcile_orphan_fill", map[string]any{
				"order_id": o.ID,
				"filled":   o.FilledSize,
			})
		}
	}

	if err := e.positions.Load(ctx); err != nil {
		return err
	}
	for _, p := range e.positions.Snapshot() {
		if err := e.risk.Ledger().Reserve(p.Size); err != nil {
			return fmt.Errorf("re-reserve position %s: %w", p.ID, err)
		}
	}
	e.logger.InfoContext(ctx, "startup reconciliation complete",
		slog.Int("orders_resolved", len(resolved)),
		slog.Int("positions_open", e.positions.OpenCount()),
	)
	return nil
}

func (e *Engine) discoveryLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.discover(ctx)
			if err := e.fatalErr(); err != nil {
				return fmt.Errorf("engine: halting: %w", err)
			}
		}
	}
}

func (e *Engine) linkLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.LinkRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.refreshLinks(ctx)
		}
	}
}

func (e *Engine) decisionLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// One bounded drain cycle so marks and exits land before exit.
			drainCtx, cancel := context.WithTimeout(context.Background(), e.cfg.DrainTimeout)
			e.cycle(drainCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			e.cycle(ctx)
			if err := e.fatalErr(); err != nil {
				return fmt.Errorf("engine: halting: %w", err)
			}
		}
	}
}

// noteFatal latches the first credential-class failure seen by any worker.
func (e *Engine) noteFatal(err error) {
	if err == nil || !errors.Is(err, domain.ErrFatal) {
		return
	}
	e.fatalMu.Lock()
	if e.fatal == nil {
		e.fatal = err
	}
	e.fatalMu.Unlock()
}

func (e *Engine) fatalErr() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatal
}

// discover refreshes the market list and the live match set. Either source
// failing leaves the previous snapshot in place.
func (e *Engine) discover(ctx context.Context) {
	markets, err := e.venue.ListMarkets(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "market discovery failed", slog.String("error", err.Error()))
		e.noteFatal(err)
	}
	states, err := e.telemetry.ListLiveMatches(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "match discovery failed", slog.String("error", err.Error()))
		e.noteFatal(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if markets != nil {
		e.markets = markets
	}
	if states != nil {
		e.matches = make(map[string]domain.MatchState, len(states))
		for _, s := range states {
			e.matches[s.MatchID] = s
		}
	}
	e.logger.InfoContext(ctx, "discovery refreshed",
		slog.Int("markets", len(e.markets)),
		slog.Int("matches", len(e.matches)),
	)
}

// refreshLinks recomputes the full link table from the current snapshots.
// Links are never patched incrementally; a full recompute keeps a renamed
// market or a finished match from leaving a stale association behind.
func (e *Engine) refreshLinks(ctx context.Context) {
	e.mu.RLock()
	states := make([]domain.MatchState, 0, len(e.matches))
	for _, s := range e.matches {
		states = append(states, s)
	}
	markets := e.markets
	e.mu.RUnlock()

	links := e.matcher.Resolve(states, markets)

	e.mu.Lock()
	e.links = links
	e.mu.Unlock()
	e.logger.InfoContext(ctx, "links refreshed", slog.Int("links", len(links)))
}

// cycle runs one decision pass: evaluate every link concurrently, then
// authorize the surviving opportunities highest edge first.
func (e *Engine) cycle(ctx context.Context) {
	e.mu.RLock()
	links := append([]domain.MatchMarketLink(nil), e.links...)
	marketsByID := make(map[string]domain.Market, len(e.markets))
	for _, m := range e.markets {
		marketsByID[m.ID] = m
	}
	e.mu.RUnlock()
	if len(links) == 0 {
		return
	}

	cycleStart := e.now().UTC()

	var (
		collectMu  sync.Mutex
		candidates []domain.Opportunity
	)
	var wg sync.WaitGroup
	for _, link := range links {
		mkt, ok := marketsByID[link.MarketID]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(link domain.MatchMarketLink, mkt domain.Market) {
			defer wg.Done()
			opp, ok := e.evaluateLink(ctx, link, mkt)
			if !ok {
				return
			}
			collectMu.Lock()
			candidates = append(candidates, opp)
			collectMu.Unlock()
		}(link, mkt)
	}
	wg.Wait()

	if len(candidates) == 0 {
		return
	}

	// Several links can compete for the same capital in one cycle; the
	// largest edge gets first claim.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Edge > candidates[j].Edge
	})
	for _, opp := range candidates {
		e.act(ctx, opp, cycleStart)
	}
}

// evaluateLink fetches fresh state and quotes for one link, services any
// exit first, and returns an entry candidate when one exists. A failing
// collaborator skips the link for this cycle; a fatal failure also latches
// so the loops stop after the cycle completes.
func (e *Engine) evaluateLink(ctx context.Context, link domain.MatchMarketLink, mkt domain.Market) (domain.Opportunity, bool) {
	log := e.logger.With(slog.String("link", link.Key()))

	state, err := e.telemetry.GetMatchState(ctx, link.MatchID)
	if err != nil {
		if errors.Is(err, domain.ErrMatchEnded) {
			e.dropMatch(link.MatchID)
			return domain.Opportunity{}, false
		}
		log.WarnContext(ctx, "match state fetch failed", slog.String("error", err.Error()))
		e.noteFatal(err)
		return domain.Opportunity{}, false
	}

	quote, err := e.venue.GetQuote(ctx, mkt)
	if err != nil {
		if errors.Is(err, domain.ErrMarketClosed) {
			e.dropMarket(mkt.ID)
			return domain.Opportunity{}, false
		}
		log.WarnContext(ctx, "quote fetch failed", slog.String("error", err.Error()))
		e.noteFatal(err)
		return domain.Opportunity{}, false
	}
	e.cacheQuote(ctx, quote)

	// Exits run before entry evaluation and bypass entry gating entirely.
	if price := quote.ImpliedProbability(); price > 0 {
		dec, exitNow, err := e.positions.Mark(ctx, link.Key(), price)
		if err != nil {
			log.WarnContext(ctx, "mark failed", slog.String("error", err.Error()))
		} else if exitNow {
			e.exit(ctx, dec, quote)
			return domain.Opportunity{}, false
		}
	}

	snap := e.risk.Ledger().Snapshot()
	return e.detector.Detect(link, state, quote, snap.Available)
}

// act authorizes one opportunity and drives the entry order. Capital is
// released if the order dies unfilled and trued up to the actual fill when
// it lands.
func (e *Engine) act(ctx context.Context, opp domain.Opportunity, cycleStart time.Time) {
	log := e.logger.With(slog.String("link", opp.Link.Key()))

	if err := e.risk.Authorize(opp); err != nil {
		log.InfoContext(ctx, "opportunity declined", slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrCircuitBroken) {
			e.auditLog(ctx, "circuit_breaker_block", map[string]any{"link": opp.Link.Key()})
		}
		return
	}
	e.auditLog(ctx, "opportunity_authorized", map[string]any{
		"link": opp.Link.Key(),
		"edge": opp.Edge,
		"size": opp.Size,
		"side": string(opp.Side),
	})
	e.publish(ctx, "signals:opportunity", map[string]any{
		"type": "opportunity_authorized",
		"link": opp.Link.Key(),
		"edge": opp.Edge,
		"size": opp.Size,
		"side": string(opp.Side),
	})

	o, err := e.orders.ExecuteEntry(ctx, opp, cycleStart)
	if err != nil {
		log.WarnContext(ctx, "entry failed", slog.String("error", err.Error()))
		e.noteFatal(err)
	}
	if o.FilledSize <= 0 {
		e.risk.Ledger().Release(opp.Size)
		return
	}

	// Release only the unfilled remainder. Whatever filled is a live stake
	// and must become a position even when the order itself ended in error.
	if unfilled := opp.Size - o.FilledSize; unfilled > 0 {
		e.risk.Ledger().Release(unfilled)
	}

	pos, err := e.positions.Open(ctx, opp, o)
	if err != nil {
		log.ErrorContext(ctx, "position open failed", slog.String("error", err.Error()))
		e.risk.Ledger().Release(o.FilledSize)
		return
	}
	e.auditLog(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"link":        pos.LinkKey,
		"entry":       pos.EntryPrice,
		"size":        pos.Size,
	})
	e.publish(ctx, "signals:position", map[string]any{
		"type":        "position_opened",
		"position_id": pos.ID,
		"link":        pos.LinkKey,
		"entry":       pos.EntryPrice,
		"size":        pos.Size,
	})
}

// exit closes a position that hit its stop or target.
func (e *Engine) exit(ctx context.Context, dec position.ExitDecision, quote domain.MarketQuote) {
	pos := dec.Position
	log := e.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("reason", string(dec.Reason)),
	)

	// Sell against the bid with a bounded concession so the exit fills.
	bid := quote.TokenA.BestBid
	if quote.TokenB.TokenID == pos.TokenID {
		bid = quote.TokenB.BestBid
	}
	if bid <= 0 {
		log.WarnContext(ctx, "no bid to exit against")
		return
	}
	limit := bid * (1 - e.cfg.ExitSlippage)

	o, err := e.orders.ExecuteExit(ctx, pos, limit, e.now().UTC())
	if err != nil {
		log.ErrorContext(ctx, "exit order failed", slog.String("error", err.Error()))
		e.noteFatal(err)
		return
	}
	if o.FilledSize <= 0 {
		log.WarnContext(ctx, "exit order did not fill, position stays open")
		return
	}

	trade, err := e.positions.CloseFromExit(ctx, pos, o, dec.Reason)
	if err != nil {
		log.ErrorContext(ctx, "position close failed", slog.String("error", err.Error()))
		return
	}
	e.risk.Ledger().Realize(pos.Size, trade.RealizedPnL)
	e.auditLog(ctx, "position_closed", map[string]any{
		"position_id": pos.ID,
		"reason":      string(dec.Reason),
		"realized":    trade.RealizedPnL,
	})
	e.publish(ctx, "signals:trade", map[string]any{
		"type":        "position_closed",
		"position_id": pos.ID,
		"link":        pos.LinkKey,
		"reason":      string(dec.Reason),
		"realized":    trade.RealizedPnL,
	})
}

// dropMarket removes a closed market and its links until the next discovery
// pass rebuilds the table.
func (e *Engine) dropMarket(marketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.markets[:0]
	for _, m := range e.markets {
		if m.ID != marketID {
			kept = append(kept, m)
		}
	}
	e.markets = kept
	keptLinks := e.links[:0]
	for _, l := range e.links {
		if l.MarketID != marketID {
			keptLinks = append(keptLinks, l)
		}
	}
	e.links = keptLinks
}

func (e *Engine) dropMatch(matchID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.matches, matchID)
	kept := e.links[:0]
	for _, l := range e.links {
		if l.MatchID != matchID {
			kept = append(kept, l)
		}
	}
	e.links = kept
}

// Links returns the current link table for the status API.
func (e *Engine) Links() []domain.MatchMarketLink {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.MatchMarketLink(nil), e.links...)
}

func (e *Engine) cacheQuote(ctx context.Context, quote domain.MarketQuote) {
	if e.quotes == nil {
		return
	}
	if err := e.quotes.SetQuote(ctx, quote); err != nil {
		e.logger.DebugContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// publish fans an event out over pub/sub for live consumers and appends it to
// the matching stream for replay. Both paths are best-effort.
func (e *Engine) publish(ctx context.Context, channel string, detail map[string]any) {
	if e.signals == nil {
		return
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := e.signals.Publish(ctx, channel, data); err != nil {
		e.logger.DebugContext(ctx, "signal publish failed", slog.String("error", err.Error()))
	}
	if err := e.signals.StreamAppend(ctx, "stream:"+channel, data); err != nil {
		e.logger.DebugContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}
}
