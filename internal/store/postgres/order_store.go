package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, link_key, market_id, token_id, position_id,
	side, kind, requested_size, requested_price,
	filled_size, avg_fill_price, state,
	venue_order_id, idempotency_key, retry_count,
	created_at, submitted_at, resolved_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, kind, state string

	err := scanner.Scan(
		&o.ID, &o.LinkKey, &o.MarketID, &o.TokenID, &o.PositionID,
		&side, &kind,
		&o.RequestedSize, &o.RequestedPrice,
		&o.FilledSize, &o.AvgFillPrice, &state,
		&o.VenueOrderID, &o.IdempotencyKey, &o.RetryCount,
		&o.CreatedAt, &o.SubmittedAt, &o.ResolvedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Kind = domain.OrderKind(kind)
	o.State = domain.OrderState(state)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a new order into the database.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, link_key, market_id, token_id, position_id,
			side, kind, requested_size, requested_price,
			filled_size, avg_fill_price, state,
			venue_order_id, idempotency_key, retry_count,
			created_at, submitted_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.LinkKey, o.MarketID, o.TokenID, o.PositionID,
		string(o.Side), string(o.Kind),
		o.RequestedSize, o.RequestedPrice,
		o.FilledSize, o.AvgFillPrice, string(o.State),
		o.VenueOrderID, o.IdempotencyKey, o.RetryCount,
		o.CreatedAt, o.SubmittedAt, o.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of an order.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET
			position_id    = $2,
			filled_size    = $3,
			avg_fill_price = $4,
			state          = $5,
			venue_order_id = $6,
			retry_count    = $7,
			submitted_at   = $8,
			resolved_at    = $9,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID, o.PositionID,
		o.FilledSize, o.AvgFillPrice, string(o.State),
		o.VenueOrderID, o.RetryCount,
		o.SubmittedAt, o.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListNonTerminal returns all orders that have not reached a terminal state,
// oldest first so reconciliation resolves them in submission order.
func (s *OrderStore) ListNonTerminal(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE state IN ('created', 'submitted', 'partially_filled')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list non-terminal orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan non-terminal orders: %w", err)
	}
	return orders, nil
}

// ListByLink returns orders for a given match-market link with pagination.
func (s *OrderStore) ListByLink(ctx context.Context, linkKey string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE link_key = $1`
	args := []any{linkKey}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by link: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by link: %w", err)
	}
	return orders, nil
}
