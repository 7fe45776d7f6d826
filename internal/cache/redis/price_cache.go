package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each symbol's
// rate is stored as a hash at key "rate:{symbol}" with fields "rate" (decimal
// string) and "ts" (Unix nanosecond timestamp). Rates are stored as strings
// so no precision is lost crossing the wire.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func rateKey(symbol string) string {
	return "rate:" + symbol
}

// SetRate stores the latest USD rate and timestamp for a symbol.
func (pc *PriceCache) SetRate(ctx context.Context, symbol string, rate decimal.Decimal, ts time.Time) error {
	key := rateKey(symbol)
	fields := map[string]interface{}{
		"rate": rate.String(),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", symbol, err)
	}
	return nil
}

// GetRate retrieves the latest USD rate and timestamp for a symbol.
// It returns domain.ErrNotFound when no rate has been cached.
func (pc *PriceCache) GetRate(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	key := rateKey(symbol)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get rate %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse rate %s: %w", symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}

	return rate, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
