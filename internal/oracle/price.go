// Package oracle resolves the SOL/USD conversion rate from an upstream price
// source, with short-TTL caching and stale fallback.
package oracle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/domain"
)

// Symbol is the cache key under which the SOL/USD rate is shared.
const Symbol = "SOL"

// defaultAssetID is the upstream source's identifier for SOL.
const defaultAssetID = "solana"

// PriceSource fetches the current USD price of an asset from the upstream
// API.
type PriceSource interface {
	SimplePrice(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// Oracle caches the SOL/USD rate in-process for a short TTL and mirrors it
// into the shared cache for other replicas. When the upstream source is down
// the last known rate is served instead, so a flaky price API degrades
// pricing freshness rather than halting ingestion.
type Oracle struct {
	source  PriceSource
	cache   domain.PriceCache // may be nil
	ttl     time.Duration
	assetID string
	logger  *slog.Logger

	mu        sync.Mutex
	rate      decimal.Decimal
	fetchedAt time.Time
}

// New creates an Oracle. cache may be nil, in which case only the in-process
// cache is used.
func New(source PriceSource, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		assetID: defaultAssetID,
		logger:  logger,
	}
}

// SolUSD returns the current SOL/USD rate. It serves the in-process value
// while fresh, otherwise refetches from upstream. On upstream failure it
// falls back to the last known rate (in-process, then shared cache) and only
// returns domain.ErrPriceUnavailable when no rate has ever been observed.
func (o *Oracle) SolUSD(ctx context.Context) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	if !o.fetchedAt.IsZero() && now.Sub(o.fetchedAt) < o.ttl {
		return o.rate, nil
	}

	rate, err := o.source.SimplePrice(ctx, o.assetID)
	if err == nil {
		o.rate = rate
		o.fetchedAt = now
		o.shareRate(ctx, rate, now)
		return rate, nil
	}

	o.logger.Warn("price fetch failed, falling back to last known rate",
		slog.String("asset", o.assetID),
		slog.String("error", err.Error()),
	)

	// Stale in-process value.
	if !o.fetchedAt.IsZero() {
		return o.rate, nil
	}

	// Another replica may have a rate in the shared cache.
	if o.cache != nil {
		cached, ts, cacheErr := o.cache.GetRate(ctx, Symbol)
		if cacheErr == nil {
			o.rate = cached
			o.fetchedAt = ts
			return cached, nil
		}
	}

	return decimal.Zero, domain.ErrPriceUnavailable
}

// shareRate mirrors a freshly fetched rate into the shared cache.
// Best-effort: a cache write failure never fails the price lookup.
func (o *Oracle) shareRate(ctx context.Context, rate decimal.Decimal, ts time.Time) {
	if o.cache == nil {
		return
	}
	if err := o.cache.SetRate(ctx, Symbol, rate, ts); err != nil {
		o.logger.Warn("price cache write failed",
			slog.String("symbol", Symbol),
			slog.String("error", err.Error()),
		)
	}
}
