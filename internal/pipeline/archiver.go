package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/degenflap/feeflow/internal/domain"
)

// DepositPruner removes archived fee deposits from the primary store.
type DepositPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// EventPruner removes archived game events from the primary store.
type EventPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PayoutPruner removes archived settled payouts from the primary store.
type PayoutPruner interface {
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves old pipeline data from the database to S3 cold storage.
// Each run uploads records older than the retention cutoff and then prunes
// them from the primary store. Pruning only happens after the corresponding
// upload succeeded, so a failed run never loses data.
type Archiver struct {
	blobArchiver  domain.Archiver
	deposits      DepositPruner
	events        EventPruner
	payouts       PayoutPruner
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	blobArchiver domain.Archiver,
	deposits DepositPruner,
	events EventPruner,
	payouts PayoutPruner,
	retentionDays int,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		deposits:      deposits,
		events:        events,
		payouts:       payouts,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive run. It calculates the cutoff time based on
// the retention window and archives deposits, game events, and settled
// payouts older than the cutoff, pruning each set after its upload.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	depositsArchived, err := a.blobArchiver.ArchiveDeposits(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving deposits before %v: %w", cutoff, err)
	}
	if depositsArchived > 0 {
		if _, err := a.deposits.DeleteBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("pruning deposits before %v: %w", cutoff, err)
		}
	}

	eventsArchived, err := a.blobArchiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving events before %v: %w", cutoff, err)
	}
	if eventsArchived > 0 {
		if _, err := a.events.DeleteBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("pruning events before %v: %w", cutoff, err)
		}
	}

	payoutsArchived, err := a.blobArchiver.ArchivePayouts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving payouts before %v: %w", cutoff, err)
	}
	if payoutsArchived > 0 {
		if _, err := a.payouts.DeleteSettledBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("pruning payouts before %v: %w", cutoff, err)
		}
	}

	a.logger.Info("archive run complete",
		slog.Int64("deposits_archived", depositsArchived),
		slog.Int64("events_archived", eventsArchived),
		slog.Int64("payouts_archived", payoutsArchived),
	)

	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// Standard 5-field cron expressions are accepted, e.g. "0 3 1 * *" runs at
// 3:00 AM on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}

	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next := schedule.Next(time.Now().UTC())
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
