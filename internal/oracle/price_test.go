package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degenflap/feeflow/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSource struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (s *stubSource) SimplePrice(context.Context, string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.rate, nil
}

type stubCache struct {
	rate     decimal.Decimal
	ts       time.Time
	has      bool
	setCalls int
}

func (c *stubCache) SetRate(_ context.Context, _ string, rate decimal.Decimal, ts time.Time) error {
	c.rate = rate
	c.ts = ts
	c.has = true
	c.setCalls++
	return nil
}

func (c *stubCache) GetRate(context.Context, string) (decimal.Decimal, time.Time, error) {
	if !c.has {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return c.rate, c.ts, nil
}

func TestOracleServesFreshRateWithoutRefetch(t *testing.T) {
	source := &stubSource{rate: decimal.NewFromInt(150)}
	o := New(source, nil, time.Hour, testLogger())

	first, err := o.SolUSD(context.Background())
	require.NoError(t, err)
	second, err := o.SolUSD(context.Background())
	require.NoError(t, err)

	assert.True(t, first.Equal(decimal.NewFromInt(150)))
	assert.True(t, second.Equal(first))
	assert.Equal(t, 1, source.calls, "fresh value is served from memory")
}

func TestOracleRefetchesAfterTTL(t *testing.T) {
	source := &stubSource{rate: decimal.NewFromInt(150)}
	o := New(source, nil, 0, testLogger())

	_, err := o.SolUSD(context.Background())
	require.NoError(t, err)
	source.rate = decimal.NewFromInt(160)
	rate, err := o.SolUSD(context.Background())
	require.NoError(t, err)

	assert.True(t, rate.Equal(decimal.NewFromInt(160)))
	assert.Equal(t, 2, source.calls)
}

func TestOracleFallsBackToStaleRate(t *testing.T) {
	source := &stubSource{rate: decimal.NewFromInt(150)}
	o := New(source, nil, 0, testLogger())

	_, err := o.SolUSD(context.Background())
	require.NoError(t, err)

	source.err = errors.New("upstream down")
	rate, err := o.SolUSD(context.Background())

	require.NoError(t, err, "a flaky price API degrades freshness, not availability")
	assert.True(t, rate.Equal(decimal.NewFromInt(150)))
}

func TestOracleFallsBackToSharedCache(t *testing.T) {
	source := &stubSource{err: errors.New("upstream down")}
	cache := &stubCache{rate: decimal.NewFromInt(142), ts: time.Now().Add(-time.Minute), has: true}
	o := New(source, cache, time.Hour, testLogger())

	rate, err := o.SolUSD(context.Background())

	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(142)), "another replica's rate is served")
}

func TestOracleUnavailableWithNoRateAnywhere(t *testing.T) {
	source := &stubSource{err: errors.New("upstream down")}
	o := New(source, &stubCache{}, time.Hour, testLogger())

	_, err := o.SolUSD(context.Background())

	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestOracleMirrorsFreshRateIntoSharedCache(t *testing.T) {
	source := &stubSource{rate: decimal.NewFromInt(150)}
	cache := &stubCache{}
	o := New(source, cache, time.Hour, testLogger())

	_, err := o.SolUSD(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, cache.setCalls)
	assert.True(t, cache.rate.Equal(decimal.NewFromInt(150)))
}
