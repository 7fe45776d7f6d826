package payout

import (
	"context"
	"fmt"
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

// stubAggregateStore enforces the same conditional deduction as the SQL
// implementation. drainAfterGet simulates a concurrent threshold consumption
// landing between the balance read and the reservation.
type stubAggregateStore struct {
	agg           domain.FeeAggregate
	deducted      []decimal.Decimal
	drainAfterGet decimal.Decimal
}

func (s *stubAggregateStore) Get(context.Context) (domain.FeeAggregate, error) {
	agg := s.agg
	if s.drainAfterGet.IsPositive() {
		s.agg.CumulativeUSD = s.agg.CumulativeUSD.Sub(s.drainAfterGet)
		s.drainAfterGet = decimal.Zero
	}
	return agg, nil
}

func (s *stubAggregateStore) Deduct(_ context.Context, _ int64, amount decimal.Decimal) error {
	if s.agg.CumulativeUSD.LessThan(amount) {
		return fmt.Errorf("deduct %s from %s: %w", amount, s.agg.CumulativeUSD, domain.ErrInsufficientPool)
	}
	s.agg.CumulativeUSD = s.agg.CumulativeUSD.Sub(amount)
	s.deducted = append(s.deducted, amount)
	return nil
}

type stubPlayerStore struct {
	winners       []domain.PlayerScore
	topScoreCalls int
}

func (s *stubPlayerStore) GetOrCreate(_ context.Context, walletAddress string) (domain.Player, error) {
	return domain.Player{ID: 1, WalletAddress: walletAddress}, nil
}

func (s *stubPlayerStore) GetByID(_ context.Context, id int64) (domain.Player, error) {
	return domain.Player{ID: id}, nil
}

func (s *stubPlayerStore) AddScore(context.Context, int64, int64, string) error {
	return nil
}

func (s *stubPlayerStore) TopScores(context.Context, time.Time, int) ([]domain.PlayerScore, error) {
	s.topScoreCalls++
	return s.winners, nil
}

func (s *stubPlayerStore) Leaderboard(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

// stubPayoutStore keeps payouts in memory and enforces the same conditional
// status transitions as the SQL implementation.
type stubPayoutStore struct {
	created   []domain.Payout
	details   map[string]*domain.PayoutDetail
	wallets   map[int64]string
	pending   []string
	retryable []string
}

func newStubPayoutStore() *stubPayoutStore {
	return &stubPayoutStore{
		details: make(map[string]*domain.PayoutDetail),
		wallets: make(map[int64]string),
	}
}

func (s *stubPayoutStore) addDetail(d domain.PayoutDetail) {
	copied := d
	s.details[d.ID] = &copied
}

func (s *stubPayoutStore) Create(_ context.Context, p domain.Payout) error {
	s.created = append(s.created, p)
	s.details[p.ID] = &domain.PayoutDetail{Payout: p, WalletAddress: s.wallets[p.PlayerID]}
	return nil
}

func (s *stubPayoutStore) GetByID(_ context.Context, id string) (domain.PayoutDetail, error) {
	d, ok := s.details[id]
	if !ok {
		return domain.PayoutDetail{}, domain.ErrNotFound
	}
	return *d, nil
}

func (s *stubPayoutStore) MarkSent(_ context.Context, id string, txSig string) error {
	d, ok := s.details[id]
	if !ok {
		return domain.ErrNotFound
	}
	if d.Status != domain.PayoutStatusPending {
		return domain.ErrAlreadySettled
	}
	d.Status = domain.PayoutStatusSent
	d.TxSig = txSig
	d.AttemptCount++
	return nil
}

func (s *stubPayoutStore) MarkFailed(_ context.Context, id string) error {
	d, ok := s.details[id]
	if !ok {
		return domain.ErrNotFound
	}
	if d.Status != domain.PayoutStatusPending {
		return domain.ErrAlreadySettled
	}
	d.Status = domain.PayoutStatusFailed
	d.AttemptCount++
	return nil
}

func (s *stubPayoutStore) Requeue(_ context.Context, id string, maxAttempts int) (bool, error) {
	d, ok := s.details[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if d.Status != domain.PayoutStatusFailed {
		return false, nil
	}
	if d.AttemptCount >= maxAttempts {
		return false, fmt.Errorf("payout %s after %d attempts: %w", id, d.AttemptCount, domain.ErrAttemptsExhausted)
	}
	d.Status = domain.PayoutStatusPending
	return true, nil
}

func (s *stubPayoutStore) ListPending(context.Context, int) ([]string, error) {
	return s.pending, nil
}

func (s *stubPayoutStore) ListRetryable(context.Context, int, time.Duration, int) ([]string, error) {
	return s.retryable, nil
}

func (s *stubPayoutStore) ListRecent(context.Context, int) ([]domain.PayoutDetail, error) {
	return nil, nil
}

func (s *stubPayoutStore) ListSettledBefore(context.Context, time.Time) ([]domain.PayoutDetail, error) {
	return nil, nil
}

func (s *stubPayoutStore) DeleteSettledBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubRates struct {
	rate  decimal.Decimal
	calls int
}

func (r *stubRates) SolUSD(context.Context) (decimal.Decimal, error) {
	r.calls++
	return r.rate, nil
}

type stubQueue struct {
	ids []string
}

func (q *stubQueue) Enqueue(id string) {
	q.ids = append(q.ids, id)
}

func newTestScheduler(aggs *stubAggregateStore, players *stubPlayerStore, payouts *stubPayoutStore, rates *stubRates, queue Enqueuer) *Scheduler {
	return NewScheduler(aggs, players, payouts, rates, queue, SchedulerConfig{
		AggregateID:  1,
		PoolFraction: decimal.RequireFromString("0.30"),
		TopN:         10,
		ScoreWindow:  24 * time.Hour,
		Cron:         "0 0 * * *",
	}, testLogger())
}

func TestSchedulerRunCycleProportionalSplit(t *testing.T) {
	aggs := &stubAggregateStore{agg: domain.FeeAggregate{ID: 1, CumulativeUSD: decimal.NewFromInt(1000)}}
	players := &stubPlayerStore{winners: []domain.PlayerScore{
		{PlayerID: 1, BestScore: 100},
		{PlayerID: 2, BestScore: 50},
		{PlayerID: 3, BestScore: 50},
	}}
	payouts := newStubPayoutStore()
	rates := &stubRates{rate: decimal.NewFromInt(150)}
	queue := &stubQueue{}

	result, err := newTestScheduler(aggs, players, payouts, rates, queue).RunCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, result.PoolUSD.Equal(decimal.NewFromInt(300)))
	assert.True(t, result.Distributed.Equal(decimal.NewFromInt(300)))
	require.Len(t, payouts.created, 3)

	wantUSD := []string{"150", "75", "75"}
	wantSol := []string{"1", "0.5", "0.5"}
	for i, p := range payouts.created {
		assert.True(t, p.AmountUSD.Equal(decimal.RequireFromString(wantUSD[i])),
			"payout %d USD share, got %s", i, p.AmountUSD)
		assert.True(t, p.AmountSol.Equal(decimal.RequireFromString(wantSol[i])),
			"payout %d SOL amount, got %s", i, p.AmountSol)
		assert.Equal(t, domain.PayoutStatusPending, p.Status)
		assert.NotEmpty(t, p.ID)
	}

	require.Len(t, aggs.deducted, 1)
	assert.True(t, aggs.deducted[0].Equal(decimal.NewFromInt(300)))
	assert.True(t, aggs.agg.CumulativeUSD.Equal(decimal.NewFromInt(700)))

	assert.Equal(t, 1, rates.calls, "one rate lookup per cycle")
	assert.Len(t, queue.ids, 3)
}

func TestSchedulerRunCycleEmptyPool(t *testing.T) {
	aggs := &stubAggregateStore{agg: domain.FeeAggregate{ID: 1, CumulativeUSD: decimal.Zero}}
	players := &stubPlayerStore{}
	payouts := newStubPayoutStore()

	result, err := newTestScheduler(aggs, players, payouts, &stubRates{}, nil).RunCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, result.PoolUSD.IsZero())
	assert.Empty(t, payouts.created)
	assert.Empty(t, aggs.deducted)
	assert.Zero(t, players.topScoreCalls, "no ranking for an empty pool")
}

func TestSchedulerRunCycleNoEligiblePlayers(t *testing.T) {
	aggs := &stubAggregateStore{agg: domain.FeeAggregate{ID: 1, CumulativeUSD: decimal.NewFromInt(1000)}}
	players := &stubPlayerStore{winners: nil}
	payouts := newStubPayoutStore()
	rates := &stubRates{rate: decimal.NewFromInt(150)}

	result, err := newTestScheduler(aggs, players, payouts, rates, nil).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, payouts.created)
	assert.Empty(t, aggs.deducted, "pool stays in the aggregate for the next cycle")
	assert.True(t, result.Distributed.IsZero())
	assert.Zero(t, rates.calls)
}

func TestSchedulerRunCycleAbortsWhenPoolShrinksUnderneath(t *testing.T) {
	// A threshold event consumes 500 between the balance read and the
	// reservation. The cycle computes a 180 pool against the stale 600 but
	// only 100 remains, so nothing may be created or deducted.
	aggs := &stubAggregateStore{
		agg:           domain.FeeAggregate{ID: 1, CumulativeUSD: decimal.NewFromInt(600)},
		drainAfterGet: decimal.NewFromInt(500),
	}
	players := &stubPlayerStore{winners: []domain.PlayerScore{{PlayerID: 1, BestScore: 100}}}
	payouts := newStubPayoutStore()
	queue := &stubQueue{}

	_, err := newTestScheduler(aggs, players, payouts, &stubRates{rate: decimal.NewFromInt(150)}, queue).
		RunCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrInsufficientPool)

	assert.Empty(t, payouts.created, "no payout may reference funds that are gone")
	assert.Empty(t, aggs.deducted)
	assert.Empty(t, queue.ids)
	assert.True(t, aggs.agg.CumulativeUSD.Equal(decimal.NewFromInt(100)), "remaining balance untouched")
}

func TestSchedulerRunCycleRoundingDustStays(t *testing.T) {
	// Pool of 100 split three ways leaves dust behind.
	aggs := &stubAggregateStore{agg: domain.FeeAggregate{ID: 1, CumulativeUSD: decimal.RequireFromString("333.3333333333333333")}}
	players := &stubPlayerStore{winners: []domain.PlayerScore{
		{PlayerID: 1, BestScore: 1},
		{PlayerID: 2, BestScore: 1},
		{PlayerID: 3, BestScore: 1},
	}}
	payouts := newStubPayoutStore()

	result, err := newTestScheduler(aggs, players, payouts, &stubRates{rate: decimal.NewFromInt(100)}, nil).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, payouts.created, 3)
	require.Len(t, aggs.deducted, 1)
	assert.True(t, aggs.deducted[0].Equal(result.Distributed),
		"only the distributed sum leaves the aggregate")
	assert.True(t, result.Distributed.LessThanOrEqual(result.PoolUSD))

	var sum decimal.Decimal
	for _, p := range payouts.created {
		sum = sum.Add(p.AmountUSD)
	}
	assert.True(t, sum.Equal(result.Distributed))
}
