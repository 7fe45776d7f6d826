package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/degenflap/feeflow/internal/ingest"
	"github.com/degenflap/feeflow/internal/payout"
	"github.com/degenflap/feeflow/internal/pipeline"
	"github.com/degenflap/feeflow/internal/server"
	"github.com/degenflap/feeflow/internal/server/handler"
	"github.com/degenflap/feeflow/internal/server/ws"
	"github.com/degenflap/feeflow/internal/service"
)

// defaultAggregateID is the singleton fee aggregate row.
const defaultAggregateID = 1

// WatchMode runs the deposit watcher and threshold engine only. Payouts are
// left to a separate payout-mode process.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	watcher, err := a.buildWatcher(deps)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(watcher, nil, nil, nil, "", a.logger)
	return orch.Run(ctx)
}

// PayoutMode runs the payout scheduler, the settlement workers, and the
// cold-storage archiver when enabled.
func (a *App) PayoutMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting payout mode")

	settler := a.buildSettler(deps)
	scheduler, err := a.buildScheduler(deps, settler)
	if err != nil {
		return fmt.Errorf("payout mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(nil, scheduler, settler, a.buildArchiver(deps), a.cfg.Archive.Cron, a.logger)
	return orch.Run(ctx)
}

// ServerMode runs only the HTTP and WebSocket API against the shared stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps, nil); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs every subsystem in one process: watcher, scheduler, settler,
// archiver, and the API server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	watcher, err := a.buildWatcher(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	settler := a.buildSettler(deps)
	scheduler, err := a.buildScheduler(deps, settler)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(watcher, scheduler, settler, a.buildArchiver(deps), a.cfg.Archive.Cron, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		if err := a.startHTTPServer(ctx, g, deps, scheduler); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	return g.Wait()
}

// thresholdUSD parses the configured threshold amount.
func (a *App) thresholdUSD() (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(a.cfg.Threshold.USD)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse threshold.usd %q: %w", a.cfg.Threshold.USD, err)
	}
	return threshold, nil
}

// buildWatcher assembles the deposit watcher with its threshold engine.
func (a *App) buildWatcher(deps *Dependencies) (*ingest.Watcher, error) {
	threshold, err := a.thresholdUSD()
	if err != nil {
		return nil, err
	}

	engine := ingest.NewThresholdEngine(deps.EventStore, deps.SignalBus, deps.Alerts, ingest.ThresholdParams{
		AggregateID:     defaultAggregateID,
		ThresholdUSD:    threshold,
		Multiplier:      a.cfg.Threshold.Multiplier,
		DurationSeconds: a.cfg.Threshold.DurationSeconds,
	}, a.logger)

	return ingest.NewWatcher(
		deps.Solana,
		deps.DepositStore,
		deps.Oracle,
		engine,
		deps.LockManager,
		deps.Solana,
		deps.SignalBus,
		ingest.WatcherConfig{
			Wallet:         a.cfg.Solana.CreatorWallet,
			AggregateID:    defaultAggregateID,
			PollInterval:   a.cfg.Ingest.PollInterval.Duration,
			SignatureLimit: a.cfg.Ingest.SignatureLimit,
			InterTxDelay:   a.cfg.Ingest.InterTxDelay.Duration,
			LockTTL:        a.cfg.Ingest.LockTTL.Duration,
		},
		a.logger,
	), nil
}

// buildScheduler assembles the payout scheduler. settler may be nil.
func (a *App) buildScheduler(deps *Dependencies, settler *payout.Settler) (*payout.Scheduler, error) {
	poolFraction, err := decimal.NewFromString(a.cfg.Payout.PoolFraction)
	if err != nil {
		return nil, fmt.Errorf("parse payout.pool_fraction %q: %w", a.cfg.Payout.PoolFraction, err)
	}

	var queue payout.Enqueuer
	if settler != nil {
		queue = settler
	}

	return payout.NewScheduler(
		deps.AggregateStore,
		deps.PlayerStore,
		deps.PayoutStore,
		deps.Oracle,
		queue,
		payout.SchedulerConfig{
			AggregateID:  defaultAggregateID,
			PoolFraction: poolFraction,
			TopN:         a.cfg.Payout.TopN,
			ScoreWindow:  a.cfg.Payout.ScoreWindow.Duration,
			Cron:         a.cfg.Payout.Cron,
		},
		a.logger,
	), nil
}

// buildSettler assembles the settlement worker pool.
func (a *App) buildSettler(deps *Dependencies) *payout.Settler {
	return payout.NewSettler(
		deps.PayoutStore,
		deps.Solana,
		deps.Signer,
		deps.LockManager,
		deps.SignalBus,
		deps.Alerts,
		payout.SettlerConfig{
			MaxAttempts:  a.cfg.Payout.MaxAttempts,
			RetryBackoff: a.cfg.Payout.RetryBackoff.Duration,
			Concurrency:  a.cfg.Payout.Concurrency,
			RescanEvery:  a.cfg.Payout.RescanEvery.Duration,
		},
		a.logger,
	)
}

// buildArchiver assembles the cold-storage archiver, or returns nil when
// archival is disabled or blob storage is not wired.
func (a *App) buildArchiver(deps *Dependencies) *pipeline.Archiver {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(
		deps.Archiver,
		deps.DepositStore,
		deps.EventStore,
		deps.PayoutStore,
		a.cfg.Archive.RetentionDays,
		a.logger,
	)
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. scheduler may be nil; when set, the admin trigger endpoint
// can run payout cycles on demand.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, scheduler *payout.Scheduler) error {
	threshold, err := a.thresholdUSD()
	if err != nil {
		return err
	}

	scoreSvc := service.NewScoreService(deps.PlayerStore, deps.RateLimiter, a.logger)
	stateSvc := service.NewStateService(deps.AggregateStore, deps.EventStore, deps.PayoutStore, threshold, a.logger)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AdminAPIKey: a.cfg.Server.AdminAPIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			State:   handler.NewStateHandler(stateSvc, a.logger),
			Scores:  handler.NewScoreHandler(scoreSvc, a.logger),
			Payouts: handler.NewPayoutHandler(stateSvc, scheduler, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return nil
}
