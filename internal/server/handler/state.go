package handler

import (
	"log/slog"
	"net/http"

	"github.com/degenflap/feeflow/internal/service"
)

// StateHandler serves the game-state snapshot.
type StateHandler struct {
	state  *service.StateService
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(state *service.StateService, logger *slog.Logger) *StateHandler {
	return &StateHandler{state: state, logger: logger}
}

// GetState returns the current fee aggregate, threshold progress, and recent
// game events.
// GET /v1/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "state")

	state, err := h.state.State(r.Context())
	if err != nil {
		log.ErrorContext(r.Context(), "state lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load game state")
		return
	}

	writeJSON(w, http.StatusOK, state)
}
