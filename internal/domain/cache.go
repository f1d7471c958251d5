package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest market quotes, shared between
// the engine loop and the ops surface.
type QuoteCache interface {
	SetQuote(ctx context.Context, quote MarketQuote) error
	GetQuote(ctx context.Context, marketID string) (MarketQuote, error)
	GetQuotes(ctx context.Context, marketIDs []string) (map[string]MarketQuote, error)
}

// RateLimiter provides distributed rate limiting for venue calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking; the engine holds a run lock so
// two replicas never trade the same capital.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries engine events (opportunities, fills, position closes,
// breaker trips) to the ops surface over pub/sub, with durable streams for
// replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
