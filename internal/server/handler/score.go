package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/service"
)

// ScoreHandler serves score submission and the leaderboard.
type ScoreHandler struct {
	scores *service.ScoreService
	logger *slog.Logger
}

// NewScoreHandler creates a ScoreHandler.
func NewScoreHandler(scores *service.ScoreService, logger *slog.Logger) *ScoreHandler {
	return &ScoreHandler{scores: scores, logger: logger}
}

// submitScoreRequest is the body of POST /v1/scores.
type submitScoreRequest struct {
	WalletAddress string `json:"wallet_address"`
	Value         int64  `json:"value"`
	SessionID     string `json:"session_id"`
}

// SubmitScore records a game score for a wallet, creating the player on
// first submission.
// POST /v1/scores
func (h *ScoreHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "scores")

	var req submitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	player, err := h.scores.Submit(r.Context(), req.WalletAddress, req.Value, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "too many score submissions")
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.ErrorContext(r.Context(), "score submission failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to record score")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"player": player,
		"value":  req.Value,
	})
}

// Leaderboard returns the all-time leaderboard, best score per player.
// GET /v1/leaderboard
func (h *ScoreHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "leaderboard")

	limit := parseLimit(r, 10, 100)
	entries, err := h.scores.Leaderboard(r.Context(), limit)
	if err != nil {
		log.ErrorContext(r.Context(), "leaderboard lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}
