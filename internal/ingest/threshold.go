package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/cache/redis"
	"github.com/degenflap/feeflow/internal/domain"
)

// Alerter receives out-of-band notifications for fired game events.
type Alerter interface {
	EventTriggered(ctx context.Context, event domain.GameEvent)
}

// ThresholdEngine converts accumulated fee revenue into game events. Each
// time the aggregate holds at least the configured threshold, one fixed-cost
// event is appended and the threshold amount is consumed; a large deposit
// that crosses the threshold several times over fires several events.
type ThresholdEngine struct {
	events      domain.EventStore
	bus         domain.SignalBus // may be nil
	alerter     Alerter          // may be nil
	logger      *slog.Logger
	aggregateID int64

	threshold  decimal.Decimal
	multiplier int
	duration   int
}

// ThresholdParams configures the engine.
type ThresholdParams struct {
	AggregateID     int64
	ThresholdUSD    decimal.Decimal
	Multiplier      int
	DurationSeconds int
}

// NewThresholdEngine creates a ThresholdEngine. bus and alerter may be nil.
func NewThresholdEngine(events domain.EventStore, bus domain.SignalBus, alerter Alerter, params ThresholdParams, logger *slog.Logger) *ThresholdEngine {
	return &ThresholdEngine{
		events:      events,
		bus:         bus,
		alerter:     alerter,
		logger:      logger,
		aggregateID: params.AggregateID,
		threshold:   params.ThresholdUSD,
		multiplier:  params.Multiplier,
		duration:    params.DurationSeconds,
	}
}

// Threshold returns the configured USD threshold.
func (e *ThresholdEngine) Threshold() decimal.Decimal {
	return e.threshold
}

// Evaluate fires as many events as the aggregate can pay for and returns the
// number fired. The conditional consume in the store is the only gate, so
// concurrent evaluations never fire more events than deposits funded.
func (e *ThresholdEngine) Evaluate(ctx context.Context) (int, error) {
	fired := 0
	for {
		if err := ctx.Err(); err != nil {
			return fired, fmt.Errorf("ingest: evaluate threshold: %w", err)
		}

		event := domain.GameEvent{
			Type: domain.EventMegaGreenCandle,
			Params: domain.EventParams{
				Multiplier:      e.multiplier,
				DurationSeconds: e.duration,
				TriggeredBy:     "fee_threshold",
				ThresholdUSD:    e.threshold.String(),
			},
			USDConsumed: e.threshold,
			TriggeredAt: time.Now().UTC(),
		}

		ok, err := e.events.AppendIfConsumed(ctx, e.aggregateID, e.threshold, event)
		if err != nil {
			return fired, fmt.Errorf("ingest: evaluate threshold: %w", err)
		}
		if !ok {
			return fired, nil
		}

		fired++
		e.logger.Info("game event fired",
			slog.String("type", string(event.Type)),
			slog.String("usd_consumed", event.USDConsumed.String()),
			slog.Int("multiplier", e.multiplier),
		)

		e.announce(ctx, event)

		if e.alerter != nil {
			e.alerter.EventTriggered(ctx, event)
		}
	}
}

// announce publishes the fired event on the signal bus. Best-effort: a
// publish failure never blocks the pipeline.
func (e *ThresholdEngine) announce(ctx context.Context, event domain.GameEvent) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, redis.ChannelEvents, payload); err != nil {
		e.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}
