package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/degenflap/feeflow/internal/cache/redis"
	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/platform/solana"
)

// TransferSender submits a signed SOL transfer and returns its signature.
type TransferSender interface {
	Transfer(ctx context.Context, signer solana.TxSigner, recipient string, lamports uint64) (string, error)
}

// Alerter receives out-of-band notifications about settlement outcomes.
type Alerter interface {
	PayoutSent(ctx context.Context, p domain.PayoutDetail)
	PayoutFailed(ctx context.Context, p domain.PayoutDetail, attempt int, cause error)
	PayoutExhausted(ctx context.Context, p domain.PayoutDetail)
}

// SettlerConfig holds settlement worker parameters.
type SettlerConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	Concurrency  int
	RescanEvery  time.Duration
}

// settleLockTTL bounds how long one settlement attempt may hold the
// per-payout lock.
const settleLockTTL = 2 * time.Minute

// queueCapacity bounds the in-process hand-off from the scheduler. The table
// rescan is the durable path, so overflow is safe to drop.
const queueCapacity = 256

// Settler executes PENDING payouts as on-chain transfers. The payouts table
// is the durable queue: a rescan loop picks up PENDING rows and requeues
// FAILED rows whose backoff has elapsed, while the in-process channel is
// just a latency shortcut for freshly scheduled payouts. The per-payout
// distributed lock plus the conditional PENDING → SENT transition guarantee
// a payout is settled at most once even with concurrent workers.
type Settler struct {
	payouts domain.PayoutStore
	chain   TransferSender
	signer  solana.TxSigner
	locks   domain.LockManager
	bus     domain.SignalBus // may be nil
	alerter Alerter          // may be nil
	cfg     SettlerConfig
	logger  *slog.Logger

	queue chan string
}

// NewSettler creates a Settler. bus and alerter may be nil.
func NewSettler(
	payouts domain.PayoutStore,
	chain TransferSender,
	signer solana.TxSigner,
	locks domain.LockManager,
	bus domain.SignalBus,
	alerter Alerter,
	cfg SettlerConfig,
	logger *slog.Logger,
) *Settler {
	return &Settler{
		payouts: payouts,
		chain:   chain,
		signer:  signer,
		locks:   locks,
		bus:     bus,
		alerter: alerter,
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan string, queueCapacity),
	}
}

// Enqueue hands a payout ID to the workers without blocking. When the buffer
// is full the payout is left for the next rescan.
func (s *Settler) Enqueue(id string) {
	select {
	case s.queue <- id:
	default:
	}
}

// Run starts the worker pool and the rescan loop, returning when ctx is
// cancelled.
func (s *Settler) Run(ctx context.Context) error {
	s.logger.Info("payout settler started",
		slog.Int("concurrency", s.cfg.Concurrency),
		slog.Duration("rescan_every", s.cfg.RescanEvery),
	)
	defer s.logger.Info("payout settler stopped")

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-s.queue:
					s.settle(ctx, id)
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.RescanEvery)
		defer ticker.Stop()
		for {
			if err := s.rescan(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("payout rescan failed", slog.String("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

// rescan feeds PENDING payouts and eligible FAILED retries into the queue.
func (s *Settler) rescan(ctx context.Context) error {
	pending, err := s.payouts.ListPending(ctx, queueCapacity)
	if err != nil {
		return fmt.Errorf("payout: list pending: %w", err)
	}
	for _, id := range pending {
		s.Enqueue(id)
	}

	retryable, err := s.payouts.ListRetryable(ctx, s.cfg.MaxAttempts, s.cfg.RetryBackoff, queueCapacity)
	if err != nil {
		return fmt.Errorf("payout: list retryable: %w", err)
	}
	for _, id := range retryable {
		ok, err := s.payouts.Requeue(ctx, id, s.cfg.MaxAttempts)
		if err != nil {
			if errors.Is(err, domain.ErrAttemptsExhausted) {
				// Another worker burned the last attempt after the listing.
				s.logger.Debug("payout retry budget spent", slog.String("payout_id", id))
				continue
			}
			s.logger.Error("payout requeue failed",
				slog.String("payout_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			s.Enqueue(id)
		}
	}
	return nil
}

// settle executes one settlement attempt for the given payout.
func (s *Settler) settle(ctx context.Context, id string) {
	log := s.logger.With(slog.String("payout_id", id))

	unlock, err := s.locks.Acquire(ctx, "payout:"+id, settleLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.Debug("settlement skipped, lock held elsewhere")
			return
		}
		log.Error("settlement lock failed", slog.String("error", err.Error()))
		return
	}
	defer unlock()

	detail, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		log.Error("payout load failed", slog.String("error", err.Error()))
		return
	}
	if detail.Status != domain.PayoutStatusPending {
		// Another worker got here first, or the payout is waiting for a
		// retry window.
		return
	}

	lamports := domain.SolToLamports(detail.AmountSol)
	if lamports <= 0 {
		log.Error("payout amount rounds to zero lamports, failing",
			slog.String("amount_sol", detail.AmountSol.String()),
		)
		s.fail(ctx, detail, fmt.Errorf("payout: zero-lamport amount: %w", domain.ErrSettlementFailed))
		return
	}

	txSig, err := s.chain.Transfer(ctx, s.signer, detail.WalletAddress, uint64(lamports))
	if err != nil {
		log.Warn("transfer failed",
			slog.Int("attempt", detail.AttemptCount+1),
			slog.String("error", err.Error()),
		)
		s.fail(ctx, detail, err)
		return
	}

	if err := s.payouts.MarkSent(ctx, id, txSig); err != nil {
		// The transfer went out but the status flip lost a race or the DB
		// call failed. Surface loudly: this needs operator attention, the
		// transfer must not be repeated.
		log.Error("mark sent failed after transfer",
			slog.String("tx_sig", txSig),
			slog.String("error", err.Error()),
		)
		return
	}

	detail.Status = domain.PayoutStatusSent
	detail.TxSig = txSig
	detail.AttemptCount++

	log.Info("payout settled",
		slog.String("tx_sig", txSig),
		slog.String("amount_sol", detail.AmountSol.String()),
		slog.String("wallet", detail.WalletAddress),
	)

	s.announce(ctx, detail)
	if s.alerter != nil {
		s.alerter.PayoutSent(ctx, detail)
	}
}

// fail records a failed attempt and alerts when the attempt budget is spent.
func (s *Settler) fail(ctx context.Context, detail domain.PayoutDetail, cause error) {
	if err := s.payouts.MarkFailed(ctx, detail.ID); err != nil {
		s.logger.Error("mark failed failed",
			slog.String("payout_id", detail.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	detail.Status = domain.PayoutStatusFailed
	detail.AttemptCount++

	s.announce(ctx, detail)

	if s.alerter == nil {
		return
	}
	if detail.AttemptCount >= s.cfg.MaxAttempts {
		s.alerter.PayoutExhausted(ctx, detail)
	} else {
		s.alerter.PayoutFailed(ctx, detail, detail.AttemptCount, cause)
	}
}

// announce publishes the payout state change on the signal bus. Best-effort.
func (s *Settler) announce(ctx context.Context, detail domain.PayoutDetail) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, redis.ChannelPayouts, payload); err != nil {
		s.logger.Warn("payout publish failed", slog.String("error", err.Error()))
	}
}
