// Package ingest watches the tracked creator wallet for incoming fee
// deposits, converts them to USD, and drives the threshold event engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/cache/redis"
	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/platform/solana"
)

// ChainReader is the subset of the Solana RPC client the watcher needs.
type ChainReader interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solana.TransactionResult, error)
}

// RateSource resolves the SOL/USD conversion rate.
type RateSource interface {
	SolUSD(ctx context.Context) (decimal.Decimal, error)
}

// AccountNotifier delivers push signals whenever the tracked account changes
// on chain. The returned channel closes when ctx ends.
type AccountNotifier interface {
	SubscribeAccount(ctx context.Context, address string) (<-chan struct{}, error)
}

// WatcherConfig holds watcher tuning parameters.
type WatcherConfig struct {
	Wallet         string
	AggregateID    int64
	PollInterval   time.Duration
	SignatureLimit int
	InterTxDelay   time.Duration
	LockTTL        time.Duration
}

// Watcher ingests transactions of the tracked wallet and records every
// incoming transfer exactly once. Passes run on a fixed interval and, when an
// account notifier is wired, immediately on a push signal; the per-wallet
// distributed lock keeps passes single-flight across replicas, and the unique
// tx_sig column makes re-observing a signature harmless either way.
type Watcher struct {
	chain    ChainReader
	deposits domain.DepositStore
	rates    RateSource
	engine   *ThresholdEngine
	locks    domain.LockManager
	push     AccountNotifier  // may be nil
	bus      domain.SignalBus // may be nil
	cfg      WatcherConfig
	logger   *slog.Logger
}

// NewWatcher creates a Watcher. push and bus may be nil.
func NewWatcher(
	chain ChainReader,
	deposits domain.DepositStore,
	rates RateSource,
	engine *ThresholdEngine,
	locks domain.LockManager,
	push AccountNotifier,
	bus domain.SignalBus,
	cfg WatcherConfig,
	logger *slog.Logger,
) *Watcher {
	return &Watcher{
		chain:    chain,
		deposits: deposits,
		rates:    rates,
		engine:   engine,
		locks:    locks,
		push:     push,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run ingests on the configured interval, and additionally on every account
// change signal, until ctx is cancelled. A failed subscription degrades to
// interval polling; pass failures are logged and the loop keeps going.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("fee watcher started",
		slog.String("wallet", w.cfg.Wallet),
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Bool("push", w.push != nil),
	)

	var signals <-chan struct{}
	if w.push != nil {
		ch, err := w.push.SubscribeAccount(ctx, w.cfg.Wallet)
		if err != nil {
			w.logger.Warn("account subscription unavailable, interval polling only",
				slog.String("error", err.Error()),
			)
		} else {
			signals = ch
		}
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	if err := w.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("poll failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("fee watcher stopped")
			return nil
		case <-ticker.C:
		case _, ok := <-signals:
			if !ok {
				// Subscription ended; the ticker keeps the watcher alive.
				signals = nil
				continue
			}
			w.logger.Debug("account change signal", slog.String("wallet", w.cfg.Wallet))
		}

		if err := w.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("poll failed", slog.String("error", err.Error()))
		}
	}
}

// PollOnce runs a single ingestion pass under the per-wallet lock. When
// another replica holds the lock the pass is skipped silently.
func (w *Watcher) PollOnce(ctx context.Context) error {
	unlock, err := w.locks.Acquire(ctx, "ingest:"+w.cfg.Wallet, w.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			w.logger.Debug("poll skipped, lock held elsewhere", slog.String("wallet", w.cfg.Wallet))
			return nil
		}
		return fmt.Errorf("ingest: acquire poll lock: %w", err)
	}
	defer unlock()

	sigs, err := w.chain.GetSignaturesForAddress(ctx, w.cfg.Wallet, w.cfg.SignatureLimit)
	if err != nil {
		return fmt.Errorf("ingest: fetch signatures: %w", err)
	}

	// Oldest first, so deposits land in chain order.
	for i := len(sigs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		sig := sigs[i]
		if sig.Failed() {
			continue
		}

		// One bad transaction must not poison the rest of the batch.
		if err := w.processSignature(ctx, sig.Signature); err != nil {
			w.logger.Error("process transaction failed",
				slog.String("tx_sig", sig.Signature),
				slog.String("error", err.Error()),
			)
		}

		if w.cfg.InterTxDelay > 0 && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.InterTxDelay):
			}
		}
	}

	return nil
}

// processSignature fetches one transaction, extracts the incoming transfer
// amount, and records it.
func (w *Watcher) processSignature(ctx context.Context, txSig string) error {
	// Cheap duplicate check before hitting the RPC node again. The unique
	// constraint in Record stays the source of truth.
	known, err := w.deposits.Exists(ctx, txSig)
	if err != nil {
		return fmt.Errorf("check deposit: %w", err)
	}
	if known {
		return nil
	}

	tx, err := w.chain.GetTransaction(ctx, txSig)
	if err != nil {
		return fmt.Errorf("fetch transaction: %w", err)
	}
	if tx == nil || tx.Failed() {
		return nil
	}

	delta, found := tx.BalanceDelta(w.cfg.Wallet)
	if !found || delta <= 0 {
		// Outgoing transfer or unrelated transaction.
		return nil
	}

	rate, err := w.rates.SolUSD(ctx)
	if err != nil {
		return fmt.Errorf("resolve rate: %w", err)
	}

	amountSol := domain.LamportsToSol(delta)
	deposit := domain.FeeDeposit{
		TxSig:          txSig,
		AmountLamports: delta,
		AmountSol:      amountSol,
		AmountUSD:      amountSol.Mul(rate),
		ObservedAt:     time.Now().UTC(),
	}

	inserted, err := w.deposits.Record(ctx, deposit, w.cfg.AggregateID)
	if err != nil {
		return fmt.Errorf("record deposit: %w", err)
	}
	if !inserted {
		return nil
	}

	w.logger.Info("fee deposit recorded",
		slog.String("tx_sig", txSig),
		slog.String("amount_sol", deposit.AmountSol.String()),
		slog.String("amount_usd", deposit.AmountUSD.String()),
	)

	w.announce(ctx, deposit)

	if _, err := w.engine.Evaluate(ctx); err != nil {
		return fmt.Errorf("evaluate threshold: %w", err)
	}
	return nil
}

// announce publishes the recorded deposit on the signal bus. Best-effort.
func (w *Watcher) announce(ctx context.Context, deposit domain.FeeDeposit) {
	if w.bus == nil {
		return
	}
	payload, err := json.Marshal(deposit)
	if err != nil {
		return
	}
	if err := w.bus.Publish(ctx, redis.ChannelDeposits, payload); err != nil {
		w.logger.Warn("deposit publish failed", slog.String("error", err.Error()))
	}
}
