package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache shares the most recent oracle rate between processes.
type PriceCache interface {
	SetRate(ctx context.Context, symbol string, rate decimal.Decimal, ts time.Time) error
	// GetRate returns ErrNotFound when no rate has been cached.
	GetRate(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
}

// LockManager provides distributed single-flight guards. Acquire returns
// ErrLockHeld when the lock is already taken; the returned release function
// is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles requests per key, e.g. score submissions per wallet.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a sliding
	// window of limit requests per window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}

// SignalBus publishes pipeline events (deposits detected, game events fired,
// payouts settled) to interested consumers such as the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads that is closed when ctx
	// is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
