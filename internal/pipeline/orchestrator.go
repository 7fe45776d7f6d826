// Package pipeline wires the long-running workers of the fee pipeline into
// one supervised unit: the chain watcher, the payout scheduler, the
// settlement workers, and the cold-storage archiver.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/degenflap/feeflow/internal/ingest"
	"github.com/degenflap/feeflow/internal/payout"
)

// Orchestrator manages the pipeline goroutines. Any component may be nil, in
// which case it simply is not started; the process mode decides which
// components exist.
type Orchestrator struct {
	watcher     *ingest.Watcher
	scheduler   *payout.Scheduler
	settler     *payout.Settler
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	watcher *ingest.Watcher,
	scheduler *payout.Scheduler,
	settler *payout.Settler,
	archiver *Archiver,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		watcher:     watcher,
		scheduler:   scheduler,
		settler:     settler,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger,
	}
}

// Run starts all configured components as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("watcher", o.watcher != nil),
		slog.Bool("scheduler", o.scheduler != nil),
		slog.Bool("settler", o.settler != nil),
		slog.Bool("archiver", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.watcher != nil {
		g.Go(func() error {
			o.logger.Info("starting deposit watcher")
			err := o.watcher.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("deposit watcher: %w", err)
		})
	}

	if o.scheduler != nil {
		g.Go(func() error {
			o.logger.Info("starting payout scheduler")
			err := o.scheduler.RunCron(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("payout scheduler: %w", err)
		})
	}

	if o.settler != nil {
		g.Go(func() error {
			o.logger.Info("starting payout settler")
			err := o.settler.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("payout settler: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
