package notify

import (
	"context"
	"fmt"

	"github.com/degenflap/feeflow/internal/domain"
)

// Event type names used for notification filtering. They match the values
// accepted in the notify.events config list.
const (
	EventThreshold       = "threshold_event"
	EventPayoutSent      = "payout_sent"
	EventPayoutFailed    = "payout_failed"
	EventPayoutExhausted = "payout_exhausted"
	EventError           = "error"
)

// PipelineAlerts adapts the Notifier to the alert hooks of the ingest and
// payout packages. Delivery is fire-and-forget: a failed notification is
// already logged by the Notifier and must never stall the pipeline.
type PipelineAlerts struct {
	notifier *Notifier
}

// NewPipelineAlerts wraps a Notifier.
func NewPipelineAlerts(notifier *Notifier) *PipelineAlerts {
	return &PipelineAlerts{notifier: notifier}
}

// EventTriggered announces a fired game event.
func (a *PipelineAlerts) EventTriggered(ctx context.Context, event domain.GameEvent) {
	_ = a.notifier.Notify(ctx, EventThreshold,
		"Game event fired",
		fmt.Sprintf("%s consumed $%s (multiplier x%d for %ds)",
			event.Type, event.USDConsumed.StringFixed(2),
			event.Params.Multiplier, event.Params.DurationSeconds),
	)
}

// PayoutSent announces a settled payout.
func (a *PipelineAlerts) PayoutSent(ctx context.Context, p domain.PayoutDetail) {
	_ = a.notifier.Notify(ctx, EventPayoutSent,
		"Payout settled",
		fmt.Sprintf("%s SOL ($%s) to %s\ntx: %s",
			p.AmountSol.String(), p.AmountUSD.StringFixed(2), p.WalletAddress, p.TxSig),
	)
}

// PayoutFailed announces a failed settlement attempt that will be retried.
func (a *PipelineAlerts) PayoutFailed(ctx context.Context, p domain.PayoutDetail, attempt int, cause error) {
	_ = a.notifier.Notify(ctx, EventPayoutFailed,
		"Payout attempt failed",
		fmt.Sprintf("payout %s attempt %d failed: %v", p.ID, attempt, cause),
	)
}

// PayoutExhausted announces a payout whose retry budget is spent and needs
// operator intervention.
func (a *PipelineAlerts) PayoutExhausted(ctx context.Context, p domain.PayoutDetail) {
	_ = a.notifier.NotifyAll(ctx,
		"Payout needs attention",
		fmt.Sprintf("payout %s to %s exhausted all attempts (%s SOL, $%s)",
			p.ID, p.WalletAddress, p.AmountSol.String(), p.AmountUSD.StringFixed(2)),
	)
}
