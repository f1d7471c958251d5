// Package order drives submissions through the order lifecycle: persist,
// submit with bounded retries, poll for fills, and cancel on timeout. Every
// state change is written to the store before the next step so a restart can
// reconcile from persisted state.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/esportsarb/internal/crypto"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/venue"
)

// Config holds submission tuning.
type Config struct {
	MaxRetries        int           // submission attempts after the first
	RetryBase         time.Duration // first backoff step, doubled per retry
	FillTimeout       time.Duration // how long a resting order may wait
	PollInterval      time.Duration // status poll cadence
	IdempotencySecret string
}

// Manager owns order execution against the venue.
type Manager struct {
	cfg    Config
	venue  venue.Venue
	orders domain.OrderStore
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a Manager.
func NewManager(cfg Config, v venue.Venue, orders domain.OrderStore, logger *slog.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Manager{
		cfg:    cfg,
		venue:  v,
		orders: orders,
		logger: logger.With(slog.String("component", "order")),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// ExecuteEntry submits a buy order for an authorized opportunity and blocks
// until the order reaches a terminal state. The idempotency key is derived
// from the link, side, token, and cycle, so a retry of the same decision
// reuses the same key.
func (m *Manager) ExecuteEntry(ctx context.Context, opp domain.Opportunity, cycle time.Time) (domain.Order, error) {
	o := domain.Order{
		ID:             uuid.New().String(),
		LinkKey:        opp.Link.Key(),
		MarketID:       opp.Link.MarketID,
		TokenID:        opp.TokenID,
		Side:           domain.OrderSideBuy,
		Kind:           domain.OrderKindEntry,
		RequestedSize:  opp.Size,
		RequestedPrice: opp.MaxPrice,
		State:          domain.OrderStateCreated,
		IdempotencyKey: crypto.IdempotencyKey(
			m.cfg.IdempotencySecret, opp.Link.Key(), string(domain.OrderSideBuy), opp.TokenID, cycle),
		CreatedAt: m.now().UTC(),
	}
	return m.run(ctx, o)
}

// ExecuteExit submits a sell order closing a position. Exits skip the entry
// gating entirely; the caller has already decided the position must close.
func (m *Manager) ExecuteExit(ctx context.Context, pos domain.Position, limitPrice float64, cycle time.Time) (domain.Order, error) {
	o := domain.Order{
		ID:             uuid.New().String(),
		LinkKey:        pos.LinkKey,
		MarketID:       pos.MarketID,
		TokenID:        pos.TokenID,
		PositionID:     pos.ID,
		Side:           domain.OrderSideSell,
		Kind:           domain.OrderKindExit,
		RequestedSize:  pos.Shares * limitPrice,
		RequestedPrice: limitPrice,
		State:          domain.OrderStateCreated,
		IdempotencyKey: crypto.IdempotencyKey(
			m.cfg.IdempotencySecret, pos.LinkKey, string(domain.OrderSideSell), pos.TokenID, cycle),
		CreatedAt: m.now().UTC(),
	}
	return m.run(ctx, o)
}

// run persists the order, submits it, and drives it to a terminal state.
func (m *Manager) run(ctx context.Context, o domain.Order) (domain.Order, error) {
	log := m.logger.With(
		slog.String("order_id", o.ID),
		slog.String("link", o.LinkKey),
		slog.String("side", string(o.Side)),
		slog.String("kind", string(o.Kind)),
	)

	if err := m.orders.Create(ctx, o); err != nil {
		return o, fmt.Errorf("order: persist created: %w", err)
	}

	ack, err := m.submit(ctx, &o, log)
	if err != nil {
		if terr := m.transition(ctx, &o, domain.OrderStateRejected); terr != nil {
			log.ErrorContext(ctx, "reject transition failed", slog.String("error", terr.Error()))
		}
		return o, err
	}

	o.VenueOrderID = ack.VenueOrderID
	if err := m.transition(ctx, &o, domain.OrderStateSubmitted); err != nil {
		return o, err
	}
	log.InfoContext(ctx, "order submitted",
		slog.String("venue_order_id", o.VenueOrderID),
		slog.Float64("size", o.RequestedSize),
		slog.Float64("price", o.RequestedPrice),
	)

	if err := m.applyUpdate(ctx, &o, venue.OrderUpdate{
		VenueOrderID: ack.VenueOrderID,
		Status:       ack.Status,
		FilledSize:   ack.FilledSize,
		AvgFillPrice: ack.AvgFillPrice,
	}); err != nil {
		return o, err
	}
	if o.State.Terminal() {
		return o, nil
	}
	return m.awaitFill(ctx, o, log)
}

// submit attempts placement with exponential backoff on transient failures.
// The idempotency key is identical across attempts, so an attempt that
// failed after reaching the venue cannot double-submit.
func (m *Manager) submit(ctx context.Context, o *domain.Order, log *slog.Logger) (venue.OrderAck, error) {
	req := venue.OrderRequest{
		TokenID:        o.TokenID,
		Side:           o.Side,
		Size:           o.RequestedSize,
		Price:          o.RequestedPrice,
		IdempotencyKey: o.IdempotencyKey,
	}

	backoff := m.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		ack, err := m.venue.PlaceOrder(ctx, req)
		if err == nil {
			return ack, nil
		}
		if !retryable(err) {
			return venue.OrderAck{}, fmt.Errorf("order: submit: %w", err)
		}
		if attempt >= m.cfg.MaxRetries {
			return venue.OrderAck{}, fmt.Errorf("order: submit after %d retries: %w", attempt, err)
		}

		o.RetryCount++
		if uerr := m.orders.Update(ctx, *o); uerr != nil {
			log.WarnContext(ctx, "retry count persist failed", slog.String("error", uerr.Error()))
		}
		log.WarnContext(ctx, "transient submit failure, backing off",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if serr := m.sleep(ctx, backoff); serr != nil {
			return venue.OrderAck{}, serr
		}
		backoff *= 2
	}
}

// awaitFill polls until the order terminates or the fill timeout elapses, at
// which point the resting remainder is cancelled.
func (m *Manager) awaitFill(ctx context.Context, o domain.Order, log *slog.Logger) (domain.Order, error) {
	deadline := m.now().Add(m.cfg.FillTimeout)

	for m.now().Before(deadline) {
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return o, err
		}

		upd, err := m.venue.OrderStatus(ctx, o.VenueOrderID)
		if err != nil {
			if retryable(err) {
				log.WarnContext(ctx, "status poll failed", slog.String("error", err.Error()))
				continue
			}
			return o, fmt.Errorf("order: poll %s: %w", o.VenueOrderID, err)
		}
		if err := m.applyUpdate(ctx, &o, upd); err != nil {
			return o, err
		}
		if o.State.Terminal() {
			return o, nil
		}
	}

	log.WarnContext(ctx, "fill timeout, cancelling remainder",
		slog.String("venue_order_id", o.VenueOrderID),
		slog.Float64("filled", o.FilledSize),
	)
	if err := m.venue.CancelOrder(ctx, o.VenueOrderID); err != nil {
		// The order must still reach a terminal state so the caller can
		// settle the reserve against it. Any fill already reported stays
		// on the order.
		log.ErrorContext(ctx, "cancel failed, rejecting order", slog.String("error", err.Error()))
		if terr := m.transition(ctx, &o, domain.OrderStateRejected); terr != nil {
			return o, terr
		}
		return o, fmt.Errorf("order: cancel %s: %w", o.VenueOrderID, err)
	}
	if err := m.transition(ctx, &o, domain.OrderStateCancelled); err != nil {
		return o, err
	}
	return o, nil
}

// Reconcile resolves orders left non-terminal by a previous run. Resting
// remainders are cancelled so no stale order fills behind the engine's back.
// It returns every order it resolved, with partial fills intact.
func (m *Manager) Reconcile(ctx context.Context) ([]domain.Order, error) {
	open, err := m.orders.ListNonTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("order: list non-terminal: %w", err)
	}

	resolved := make([]domain.Order, 0, len(open))
	for _, o := range open {
		log := m.logger.With(slog.String("order_id", o.ID))

		if o.VenueOrderID == "" {
			// Never reached the venue. Nothing can fill; mark it rejected.
			if err := m.transition(ctx, &o, domain.OrderStateRejected); err != nil {
				return resolved, err
			}
			resolved = append(resolved, o)
			continue
		}

		upd, err := m.venue.OrderStatus(ctx, o.VenueOrderID)
		if err != nil {
			log.WarnContext(ctx, "reconcile poll failed", slog.String("error", err.Error()))
			continue
		}
		if err := m.applyUpdate(ctx, &o, upd); err != nil {
			return resolved, err
		}
		if !o.State.Terminal() {
			if err := m.venue.CancelOrder(ctx, o.VenueOrderID); err != nil {
				log.WarnContext(ctx, "reconcile cancel failed", slog.String("error", err.Error()))
				continue
			}
			if err := m.transition(ctx, &o, domain.OrderStateCancelled); err != nil {
				return resolved, err
			}
		}
		log.InfoContext(ctx, "order reconciled",
			slog.String("state", string(o.State)),
			slog.Float64("filled", o.FilledSize),
		)
		resolved = append(resolved, o)
	}
	return resolved, nil
}

// applyUpdate folds a venue status report into the order, transitioning only
// when the state actually changes.
func (m *Manager) applyUpdate(ctx context.Context, o *domain.Order, upd venue.OrderUpdate) error {
	o.FilledSize = upd.FilledSize
	o.AvgFillPrice = upd.AvgFillPrice
	if upd.Status == o.State {
		return m.orders.Update(ctx, *o)
	}
	return m.transition(ctx, o, upd.Status)
}

// transition enforces the state machine and persists the result.
func (m *Manager) transition(ctx context.Context, o *domain.Order, to domain.OrderState) error {
	if !o.State.CanTransitionTo(to) {
		return fmt.Errorf("order: %s -> %s: %w", o.State, to, domain.ErrIllegalTransition)
	}
	o.State = to
	now := m.now().UTC()
	switch {
	case to == domain.OrderStateSubmitted:
		o.SubmittedAt = &now
	case to.Terminal():
		o.ResolvedAt = &now
	}
	if err := m.orders.Update(ctx, *o); err != nil {
		return fmt.Errorf("order: persist %s: %w", to, err)
	}
	return nil
}

// retryable reports whether a venue error warrants another attempt.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrTransient) || errors.Is(err, domain.ErrRateLimited)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
