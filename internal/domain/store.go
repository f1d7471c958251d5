package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Open positions are loaded at startup for
// reconciliation before any new decision is admitted.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice, realizedPnL float64) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
}

// OrderStore persists orders across their lifecycle. Non-terminal orders are
// queried at startup and reconciled against the venue.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListNonTerminal(ctx context.Context) ([]Order, error)
	ListByLink(ctx context.Context, linkKey string, opts ListOpts) ([]Order, error)
}

// TradeStore persists the closed-position history.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Trade, error)
	SumRealizedPnL(ctx context.Context, since time.Time) (float64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only decision audit log. Every acted-on
// opportunity, order transition, and circuit-breaker trip is recorded here.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
