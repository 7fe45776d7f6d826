package ingest

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

// stubEventStore keeps the aggregate balance in memory and applies the
// conditional consume exactly like the SQL implementation: deduct and append
// only when the balance covers the threshold.
type stubEventStore struct {
	balance decimal.Decimal
	events  []domain.GameEvent
	err     error
}

func (s *stubEventStore) AppendIfConsumed(_ context.Context, _ int64, threshold decimal.Decimal, event domain.GameEvent) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.balance.LessThan(threshold) {
		return false, nil
	}
	s.balance = s.balance.Sub(threshold)
	s.events = append(s.events, event)
	return true, nil
}

func (s *stubEventStore) ListRecent(context.Context, int) ([]domain.GameEvent, error) {
	return s.events, nil
}

func (s *stubEventStore) ListBefore(context.Context, time.Time) ([]domain.GameEvent, error) {
	return nil, nil
}

func (s *stubEventStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubAlerter struct {
	events []domain.GameEvent
}

func (a *stubAlerter) EventTriggered(_ context.Context, event domain.GameEvent) {
	a.events = append(a.events, event)
}

type stubBus struct {
	published map[string][][]byte
}

func (b *stubBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func newTestEngine(store *stubEventStore, bus domain.SignalBus, alerter Alerter) *ThresholdEngine {
	return NewThresholdEngine(store, bus, alerter, ThresholdParams{
		AggregateID:     1,
		ThresholdUSD:    decimal.NewFromInt(500),
		Multiplier:      5,
		DurationSeconds: 60,
	}, testLogger())
}

func TestThresholdEngineEvaluateBelowThreshold(t *testing.T) {
	store := &stubEventStore{balance: decimal.NewFromInt(480)}
	engine := newTestEngine(store, nil, nil)

	fired, err := engine.Evaluate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Empty(t, store.events)
	assert.True(t, store.balance.Equal(decimal.NewFromInt(480)), "balance must be untouched")
}

func TestThresholdEngineEvaluateFiresOneEvent(t *testing.T) {
	store := &stubEventStore{balance: decimal.NewFromInt(510)}
	engine := newTestEngine(store, nil, nil)

	fired, err := engine.Evaluate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	require.Len(t, store.events, 1)
	assert.True(t, store.balance.Equal(decimal.NewFromInt(10)), "remainder carries over")

	event := store.events[0]
	assert.Equal(t, domain.EventMegaGreenCandle, event.Type)
	assert.Equal(t, 5, event.Params.Multiplier)
	assert.Equal(t, 60, event.Params.DurationSeconds)
	assert.Equal(t, "fee_threshold", event.Params.TriggeredBy)
	assert.Equal(t, "500", event.Params.ThresholdUSD)
	assert.True(t, event.USDConsumed.Equal(decimal.NewFromInt(500)))
	assert.False(t, event.TriggeredAt.IsZero())
}

func TestThresholdEngineEvaluateFiresMultipleEvents(t *testing.T) {
	store := &stubEventStore{balance: decimal.NewFromInt(1050)}
	bus := &stubBus{}
	alerter := &stubAlerter{}
	engine := newTestEngine(store, bus, alerter)

	fired, err := engine.Evaluate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, fired)
	assert.Len(t, store.events, 2)
	assert.True(t, store.balance.Equal(decimal.NewFromInt(50)))
	assert.Len(t, alerter.events, 2)
	assert.Len(t, bus.published["feeflow:events"], 2)
}

func TestThresholdEngineEvaluateStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &stubEventStore{balance: decimal.NewFromInt(1000), err: storeErr}
	engine := newTestEngine(store, nil, nil)

	fired, err := engine.Evaluate(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 0, fired)
}
