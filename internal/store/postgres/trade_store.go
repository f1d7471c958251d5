package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, position_id, link_key, match_id, market_id, token_id,
	side, entry_price, exit_price, size, shares,
	realized_pnl, fees_paid, exit_reason, opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, reason string

		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.LinkKey, &t.MatchID, &t.MarketID, &t.TokenID,
			&side, &t.EntryPrice, &t.ExitPrice, &t.Size, &t.Shares,
			&t.RealizedPnL, &t.FeesPaid, &reason, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Side = domain.OpportunitySide(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert appends a single round-trip record.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			position_id, link_key, match_id, market_id, token_id,
			side, entry_price, exit_price, size, shares,
			realized_pnl, fees_paid, exit_reason, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		t.PositionID, t.LinkKey, t.MatchID, t.MarketID, t.TokenID,
		string(t.Side), t.EntryPrice, t.ExitPrice, t.Size, t.Shares,
		t.RealizedPnL, t.FeesPaid, string(t.ExitReason), t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade for position %s: %w", t.PositionID, err)
	}
	return nil
}

// ListRecent returns trades newest first with pagination and optional time
// filtering.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

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
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// SumRealizedPnL returns the sum of realized P&L for trades closed at or after
// the given time. Used to rebuild the daily loss counter on startup.
func (s *TradeStore) SumRealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum *float64
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(realized_pnl) FROM trades WHERE closed_at >= $1`, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum realized pnl: %w", err)
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// ListBefore returns all trades closed strictly before the given time (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE closed_at < $1 ORDER BY closed_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades closed before the given time. Returns the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
