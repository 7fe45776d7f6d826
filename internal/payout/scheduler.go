// Package payout turns accumulated fee revenue into reward obligations and
// settles them on chain.
package payout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/domain"
)

// RateSource resolves the SOL/USD conversion rate.
type RateSource interface {
	SolUSD(ctx context.Context) (decimal.Decimal, error)
}

// Enqueuer hands freshly created payouts to the settlement worker.
type Enqueuer interface {
	Enqueue(id string)
}

// SchedulerConfig holds payout cycle parameters.
type SchedulerConfig struct {
	AggregateID  int64
	PoolFraction decimal.Decimal
	TopN         int
	ScoreWindow  time.Duration
	Cron         string
}

// CycleResult summarises one payout cycle.
type CycleResult struct {
	PoolUSD     decimal.Decimal
	Distributed decimal.Decimal
	Payouts     []domain.Payout
}

// Scheduler runs payout cycles: it carves the reward pool out of the fee
// aggregate, ranks players by their best score in the ranking window, and
// creates one PENDING payout per winner. The SOL amount of every payout is
// locked in at cycle time using a single rate lookup, so all winners of a
// cycle are priced consistently.
type Scheduler struct {
	aggregates domain.AggregateStore
	players    domain.PlayerStore
	payouts    domain.PayoutStore
	rates      RateSource
	queue      Enqueuer // may be nil
	cfg        SchedulerConfig
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler. queue may be nil, in which case created
// payouts are picked up by the settlement worker's table rescan.
func NewScheduler(
	aggregates domain.AggregateStore,
	players domain.PlayerStore,
	payouts domain.PayoutStore,
	rates RateSource,
	queue Enqueuer,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		aggregates: aggregates,
		players:    players,
		payouts:    payouts,
		rates:      rates,
		queue:      queue,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunCycle executes one payout cycle. When there is no pool or no eligible
// player, nothing is created and nothing is deducted.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	agg, err := s.aggregates.Get(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("payout: load aggregate: %w", err)
	}

	pool := agg.CumulativeUSD.Mul(s.cfg.PoolFraction)
	if !pool.IsPositive() {
		s.logger.Info("payout cycle skipped, empty pool",
			slog.String("cumulative_usd", agg.CumulativeUSD.String()),
		)
		return CycleResult{PoolUSD: pool}, nil
	}

	since := time.Now().UTC().Add(-s.cfg.ScoreWindow)
	winners, err := s.players.TopScores(ctx, since, s.cfg.TopN)
	if err != nil {
		return CycleResult{}, fmt.Errorf("payout: rank players: %w", err)
	}
	if len(winners) == 0 {
		// No eligible players: the pool stays in the aggregate for the next
		// cycle.
		s.logger.Info("payout cycle skipped, no eligible players",
			slog.String("pool_usd", pool.String()),
		)
		return CycleResult{PoolUSD: pool}, nil
	}

	rate, err := s.rates.SolUSD(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("payout: resolve rate: %w", err)
	}

	totalScore := decimal.Zero
	for _, w := range winners {
		totalScore = totalScore.Add(decimal.NewFromInt(w.BestScore))
	}

	result := CycleResult{PoolUSD: pool}
	now := time.Now().UTC()

	type share struct {
		payout domain.Payout
		score  int64
	}
	var shares []share
	reserve := decimal.Zero

	for _, w := range winners {
		shareUSD := pool.
			Mul(decimal.NewFromInt(w.BestScore)).
			Div(totalScore).
			RoundDown(8)
		if !shareUSD.IsPositive() {
			continue
		}

		shares = append(shares, share{
			payout: domain.Payout{
				ID:        uuid.New().String(),
				PlayerID:  w.PlayerID,
				AmountUSD: shareUSD,
				AmountSol: shareUSD.Div(rate).RoundDown(9),
				Status:    domain.PayoutStatusPending,
				CreatedAt: now,
			},
			score: w.BestScore,
		})
		reserve = reserve.Add(shareUSD)
	}

	if !reserve.IsPositive() {
		return result, nil
	}

	// Reserve the full distribution before any payout row exists. The
	// threshold engine consumes from the same aggregate concurrently, so the
	// balance read above may already be stale; the conditional deduction
	// refuses to go below zero. When the pool shrank under us, no payout is
	// created and the next cycle recomputes against the smaller aggregate.
	// Rounding dust below the pool stays in the aggregate either way.
	if err := s.aggregates.Deduct(ctx, agg.ID, reserve); err != nil {
		return result, fmt.Errorf("payout: reserve pool: %w", err)
	}
	result.Distributed = reserve

	for _, sh := range shares {
		p := sh.payout
		if err := s.payouts.Create(ctx, p); err != nil {
			return result, fmt.Errorf("payout: create payout for player %d: %w", p.PlayerID, err)
		}

		result.Payouts = append(result.Payouts, p)

		s.logger.Info("payout created",
			slog.String("payout_id", p.ID),
			slog.Int64("player_id", p.PlayerID),
			slog.Int64("best_score", sh.score),
			slog.String("amount_usd", p.AmountUSD.String()),
			slog.String("amount_sol", p.AmountSol.String()),
		)
	}

	if s.queue != nil {
		for _, p := range result.Payouts {
			s.queue.Enqueue(p.ID)
		}
	}

	s.logger.Info("payout cycle complete",
		slog.String("pool_usd", result.PoolUSD.String()),
		slog.String("distributed_usd", result.Distributed.String()),
		slog.Int("payouts", len(result.Payouts)),
	)

	return result, nil
}

// RunCron runs payout cycles on the configured cron schedule until ctx is
// cancelled. Cycle failures are logged and the schedule keeps going.
func (s *Scheduler) RunCron(ctx context.Context) error {
	schedule, err := cron.ParseStandard(s.cfg.Cron)
	if err != nil {
		return fmt.Errorf("payout: parse cron %q: %w", s.cfg.Cron, err)
	}

	s.logger.Info("payout scheduler started", slog.String("cron", s.cfg.Cron))

	for {
		next := schedule.Next(time.Now())
		s.logger.Info("payout scheduler waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("payout scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.Error("payout cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}
