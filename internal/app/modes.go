package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/esportsarb/internal/crypto"
	"github.com/alanyoungcy/esportsarb/internal/detector"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/engine"
	"github.com/alanyoungcy/esportsarb/internal/matcher"
	"github.com/alanyoungcy/esportsarb/internal/order"
	"github.com/alanyoungcy/esportsarb/internal/position"
	"github.com/alanyoungcy/esportsarb/internal/risk"
	"github.com/alanyoungcy/esportsarb/internal/server"
	"github.com/alanyoungcy/esportsarb/internal/server/handler"
	"github.com/alanyoungcy/esportsarb/internal/server/ws"
	"github.com/alanyoungcy/esportsarb/internal/telemetry"
	"github.com/alanyoungcy/esportsarb/internal/venue"
)

// engineLockTTL is the run-lock lease; the lock manager refreshes it while
// the process is alive, so it only needs to outlive a refresh hiccup.
const engineLockTTL = 30 * time.Second

// pipeline groups the trading components an HTTP server may want to expose.
type pipeline struct {
	engine  *engine.Engine
	risk    *risk.Manager
	tracker *position.Tracker
}

// EngineMode runs the trading pipeline without the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	unlock, err := deps.LockManager.Acquire(ctx, "engine:run", engineLockTTL)
	if err != nil {
		return fmt.Errorf("engine mode: acquire run lock: %w", err)
	}
	defer unlock()

	p, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.engine.Run(ctx) })
	a.startNotifyBridge(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs the HTTP API alone; positions, orders, and trades are read
// from the stores maintained by an engine replica elsewhere.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	a.startNotifyBridge(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the trading pipeline and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	unlock, err := deps.LockManager.Acquire(ctx, "engine:run", engineLockTTL)
	if err != nil {
		return fmt.Errorf("full mode: acquire run lock: %w", err)
	}
	defer unlock()

	p, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.engine.Run(ctx) })
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, p)
	}
	a.startNotifyBridge(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// buildPipeline assembles the telemetry provider, venue, and decision
// components into a runnable engine.
func (a *App) buildPipeline(deps *Dependencies) (*pipeline, error) {
	cfg := a.cfg

	tel := telemetry.NewClient(cfg.Telemetry.BaseURL, cfg.Telemetry.Token, cfg.Telemetry.Games)

	var v venue.Venue
	if cfg.Engine.PaperTrading {
		// Paper fills simulate against live quotes; discovery and book data
		// still come from the real venue, unauthenticated.
		data := venue.NewClient(cfg.Venue.BaseURL, nil)
		v = venue.NewPaper(data, a.logger)
	} else {
		client := venue.NewClient(cfg.Venue.BaseURL, &crypto.HMACAuth{
			Key:        cfg.Venue.ApiKey,
			Secret:     cfg.Venue.ApiSecret,
			Passphrase: cfg.Venue.ApiPassphrase,
		})
		client.SetRateLimiter(deps.RateLimiter)
		v = client
	}

	tracker := position.NewTracker(position.Config{
		StopLossFrac:   cfg.Position.StopLossFrac,
		TakeProfitFrac: cfg.Position.TakeProfitFrac,
		FeeRate:        cfg.Position.FeeRate,
	}, deps.PositionStore, deps.TradeStore, a.logger)

	det := detector.New(detector.Config{
		MinEdge:         cfg.Detector.MinEdge,
		MaxSlippage:     cfg.Detector.MaxSlippage,
		MaxPositionFrac: cfg.Risk.MaxPositionFrac,
	}, tracker, a.logger)

	ledger := risk.NewLedger(cfg.Risk.InitialCapital)
	riskMgr := risk.NewManager(risk.Config{
		MaxPositionFrac:    cfg.Risk.MaxPositionFrac,
		MaxExposureFrac:    cfg.Risk.MaxExposureFrac,
		MaxConcurrent:      cfg.Risk.MaxConcurrent,
		DailyLossFrac:      cfg.Risk.DailyLossFrac,
		MinMatchConfidence: cfg.Risk.MinMatchConfidence,
		MaxSlippage:        cfg.Detector.MaxSlippage,
	}, ledger, tracker, a.logger)

	orderMgr := order.NewManager(order.Config{
		MaxRetries:        cfg.Order.MaxRetries,
		RetryBase:         cfg.Order.RetryBase.Duration,
		FillTimeout:       cfg.Order.FillTimeout.Duration,
		PollInterval:      cfg.Order.PollInterval.Duration,
		IdempotencySecret: cfg.Order.IdempotencySecret,
	}, v, deps.OrderStore, a.logger)

	eng := engine.New(engine.Config{
		PollInterval:        cfg.Engine.PollInterval.Duration,
		DiscoveryInterval:   cfg.Engine.DiscoveryInterval.Duration,
		LinkRefreshInterval: cfg.Engine.LinkRefreshInterval.Duration,
		DrainTimeout:        cfg.Engine.DrainTimeout.Duration,
		ExitSlippage:        cfg.Engine.ExitSlippage,
	}, tel, v, matcher.New(a.logger), det, riskMgr, orderMgr, tracker, a.logger)

	eng.SetAudit(deps.AuditStore)
	eng.SetSignalBus(deps.SignalBus)
	eng.SetQuoteCache(deps.QuoteCache)

	return &pipeline{engine: eng, risk: riskMgr, tracker: tracker}, nil
}

// startHTTPServer adds the HTTP server and WebSocket hub to the errgroup.
// p is optional; when nil (server mode) the status and position handlers fall
// back to store-backed data only.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, p *pipeline) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:         a.cfg.Mode,
		PaperTrading: a.cfg.Engine.PaperTrading,
		StartedAt:    startedAt,
	})
	g.Go(func() error { return hub.Run(ctx) })

	var (
		links     handler.LinkSource
		riskSrc   handler.RiskSource
		openCount handler.PositionCounter
		openPos   handler.PositionSource
	)
	if p != nil {
		links = p.engine
		riskSrc = p.risk
		openCount = p.tracker
		openPos = p.tracker
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Engine.PaperTrading, startedAt, links, riskSrc, openCount),
		Positions: handler.NewPositionHandler(openPos, deps.PositionStore, a.logger),
		Orders:    handler.NewOrderHandler(deps.OrderStore, a.logger),
		Trades:    handler.NewTradeHandler(deps.TradeStore, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
		Archive:   handler.NewArchiveHandler(deps.Archiver, deps.BlobReader, a.cfg.Archive.RetentionDays, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// signalEvent is the common envelope published on the signals channels.
type signalEvent struct {
	Type       string  `json:"type"`
	Link       string  `json:"link"`
	PositionID string  `json:"position_id"`
	Edge       float64 `json:"edge"`
	Size       float64 `json:"size"`
	Side       string  `json:"side"`
	Entry      float64 `json:"entry"`
	Reason     string  `json:"reason"`
	Realized   float64 `json:"realized"`
}

// startNotifyBridge forwards engine signals to the configured notification
// channels. Without senders the bridge is skipped entirely.
func (a *App) startNotifyBridge(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !deps.Notifier.HasSenders() {
		return
	}

	channels := []string{"signals:opportunity", "signals:position", "signals:trade"}
	for _, channel := range channels {
		channel := channel
		g.Go(func() error {
			msgs, err := deps.SignalBus.Subscribe(ctx, channel)
			if err != nil {
				return fmt.Errorf("notify bridge: subscribe %s: %w", channel, err)
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case msg, ok := <-msgs:
					if !ok {
						return nil
					}
					a.forwardSignal(ctx, deps, msg)
				}
			}
		})
	}
}

// forwardSignal decodes one signal payload and hands it to the notifier.
func (a *App) forwardSignal(ctx context.Context, deps *Dependencies, payload []byte) {
	var ev signalEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		a.logger.WarnContext(ctx, "notify bridge: bad signal payload",
			slog.String("error", err.Error()),
		)
		return
	}

	var title, message string
	switch ev.Type {
	case "opportunity_authorized":
		title = "Opportunity authorized"
		message = fmt.Sprintf("%s %s edge %.2f%% size $%.2f", ev.Link, ev.Side, ev.Edge*100, ev.Size)
	case "position_opened":
		title = "Position opened"
		message = fmt.Sprintf("%s entry %.4f size $%.2f", ev.Link, ev.Entry, ev.Size)
	case "position_closed":
		title = "Position closed"
		message = fmt.Sprintf("%s %s realized $%.2f", ev.Link, ev.Reason, ev.Realized)
	default:
		return
	}

	if err := deps.Notifier.Notify(ctx, ev.Type, title, message); err != nil {
		a.logger.WarnContext(ctx, "notify bridge: delivery failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// startArchiveLoop periodically moves trades and audit rows older than the
// retention window to blob storage. No-op unless archival is wired.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.runArchivePass(ctx, deps.Archiver)
			}
		}
	})
}

func (a *App) runArchivePass(ctx context.Context, archiver domain.Archiver) {
	before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	trades, err := archiver.ArchiveTrades(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive pass: trades failed",
			slog.String("error", err.Error()),
		)
	}
	audit, err := archiver.ArchiveAudit(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive pass: audit failed",
			slog.String("error", err.Error()),
		)
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Int64("trades", trades),
		slog.Int64("audit", audit),
		slog.Time("before", before),
	)
}
