package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/domain"
)

// recentEventCount is how many recent events the state snapshot carries.
const recentEventCount = 5

// GameState is the public snapshot of the pipeline for game clients.
type GameState struct {
	CumulativeUSD    decimal.Decimal    `json:"cumulative_usd"`
	ThresholdUSD     decimal.Decimal    `json:"threshold_usd"`
	NextThresholdUSD decimal.Decimal    `json:"next_threshold_usd"`
	RecentEvents     []domain.GameEvent `json:"recent_events"`
}

// StateService answers game-state and payout-history queries.
type StateService struct {
	aggregates domain.AggregateStore
	events     domain.EventStore
	payouts    domain.PayoutStore
	threshold  decimal.Decimal
	logger     *slog.Logger
}

// NewStateService creates a StateService.
func NewStateService(
	aggregates domain.AggregateStore,
	events domain.EventStore,
	payouts domain.PayoutStore,
	threshold decimal.Decimal,
	logger *slog.Logger,
) *StateService {
	return &StateService{
		aggregates: aggregates,
		events:     events,
		payouts:    payouts,
		threshold:  threshold,
		logger:     logger,
	}
}

// State returns the current game state. A missing aggregate row degrades to
// a zeroed snapshot instead of an error, so clients render cleanly against a
// fresh deployment.
func (s *StateService) State(ctx context.Context) (GameState, error) {
	state := GameState{
		ThresholdUSD: s.threshold,
		RecentEvents: []domain.GameEvent{},
	}

	agg, err := s.aggregates.Get(ctx)
	if err == nil {
		state.CumulativeUSD = agg.CumulativeUSD
	} else {
		s.logger.WarnContext(ctx, "state_service: aggregate unavailable, serving zero state",
			slog.String("error", err.Error()),
		)
	}

	// USD remaining until the next event fires.
	if s.threshold.IsPositive() {
		state.NextThresholdUSD = s.threshold.Sub(state.CumulativeUSD.Mod(s.threshold))
	}

	events, err := s.events.ListRecent(ctx, recentEventCount)
	if err != nil {
		return GameState{}, fmt.Errorf("state_service: recent events: %w", err)
	}
	if events != nil {
		state.RecentEvents = events
	}

	return state, nil
}

// RecentPayouts returns the most recently created payouts with player
// wallets, newest first.
func (s *StateService) RecentPayouts(ctx context.Context, limit int) ([]domain.PayoutDetail, error) {
	payouts, err := s.payouts.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("state_service: recent payouts: %w", err)
	}
	return payouts, nil
}
