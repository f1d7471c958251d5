package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// quoteTTL bounds how long a stale quote survives in the cache. The engine
// refreshes quotes every decision cycle, so anything older is dead weight.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes.
// Each market's quote is stored as a hash at key "quote:{marketID}" with one
// field per book level plus a "ts" field (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(marketID string) string {
	return "quote:" + marketID
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SetQuote stores the latest quote for a market and refreshes its TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.MarketQuote) error {
	key := quoteKey(q.MarketID)
	fields := map[string]interface{}{
		"a_token":     q.TokenA.TokenID,
		"a_bid":       f(q.TokenA.BestBid),
		"a_ask":       f(q.TokenA.BestAsk),
		"a_bid_depth": f(q.TokenA.BidDepth),
		"a_ask_depth": f(q.TokenA.AskDepth),
		"b_token":     q.TokenB.TokenID,
		"b_bid":       f(q.TokenB.BestBid),
		"b_ask":       f(q.TokenB.BestAsk),
		"b_bid_depth": f(q.TokenB.BidDepth),
		"b_ask_depth": f(q.TokenB.AskDepth),
		"ts":          strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.MarketID, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, marketID string) (domain.MarketQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(marketID)).Result()
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: get quote %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.MarketQuote{}, domain.ErrNotFound
	}

	q, err := quoteFromHash(marketID, vals)
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: parse quote %s: %w", marketID, err)
	}
	return q, nil
}

// GetQuotes retrieves the latest quotes for multiple markets using a pipeline.
// Markets whose keys do not exist are silently omitted from the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, marketIDs []string) (map[string]domain.MarketQuote, error) {
	if len(marketIDs) == 0 {
		return map[string]domain.MarketQuote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.HGetAll(ctx, quoteKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.MarketQuote, len(marketIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := quoteFromHash(id, vals)
		if err != nil {
			continue
		}
		result[id] = q
	}

	return result, nil
}

func quoteFromHash(marketID string, vals map[string]string) (domain.MarketQuote, error) {
	parse := func(field string) (float64, error) {
		s, ok := vals[field]
		if !ok {
			return 0, fmt.Errorf("missing field %q", field)
		}
		return strconv.ParseFloat(s, 64)
	}

	var q domain.MarketQuote
	var err error
	q.MarketID = marketID
	q.TokenA.TokenID = vals["a_token"]
	q.TokenB.TokenID = vals["b_token"]

	if q.TokenA.BestBid, err = parse("a_bid"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenA.BestAsk, err = parse("a_ask"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenA.BidDepth, err = parse("a_bid_depth"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenA.AskDepth, err = parse("a_ask_depth"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenB.BestBid, err = parse("b_bid"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenB.BestAsk, err = parse("b_ask"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenB.BidDepth, err = parse("b_bid_depth"); err != nil {
		return domain.MarketQuote{}, err
	}
	if q.TokenB.AskDepth, err = parse("b_ask_depth"); err != nil {
		return domain.MarketQuote{}, err
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.MarketQuote{}, fmt.Errorf("missing field %q", "ts")
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	q.Timestamp = time.Unix(0, tsNano)

	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
