package handler

import (
	"log/slog"
	"net/http"

	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/payout"
	"github.com/degenflap/feeflow/internal/service"
)

// PayoutHandler serves payout history and the admin cycle trigger.
type PayoutHandler struct {
	state     *service.StateService
	scheduler *payout.Scheduler // nil when this process does not schedule
	logger    *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler. scheduler may be nil, in which
// case the trigger endpoint reports the capability as unavailable.
func NewPayoutHandler(state *service.StateService, scheduler *payout.Scheduler, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{state: state, scheduler: scheduler, logger: logger}
}

// ListPayouts returns the most recent payouts, newest first.
// GET /v1/payouts
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "payouts")

	limit := parseLimit(r, 20, 200)
	payouts, err := h.state.RecentPayouts(r.Context(), limit)
	if err != nil {
		log.ErrorContext(r.Context(), "payout lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load payouts")
		return
	}
	if payouts == nil {
		payouts = []domain.PayoutDetail{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payouts": payouts,
	})
}

// TriggerCycle runs a payout cycle immediately instead of waiting for the
// cron schedule.
// POST /v1/admin/trigger-payout
func (h *PayoutHandler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "trigger_payout")

	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "payout scheduling is not enabled on this instance")
		return
	}

	result, err := h.scheduler.RunCycle(r.Context())
	if err != nil {
		log.ErrorContext(r.Context(), "manual payout cycle failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "payout cycle failed")
		return
	}

	log.InfoContext(r.Context(), "manual payout cycle complete",
		slog.String("pool_usd", result.PoolUSD.String()),
		slog.Int("payouts", len(result.Payouts)),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_usd":        result.PoolUSD,
		"distributed_usd": result.Distributed,
		"payouts_created": len(result.Payouts),
	})
}
