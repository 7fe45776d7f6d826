// Package service holds the application services behind the HTTP API:
// score submission and game-state queries.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/degenflap/feeflow/internal/domain"
)

// Wallet address length bounds for base58-encoded 32-byte keys.
const (
	minWalletLen = 32
	maxWalletLen = 44
)

// scoreRateLimit caps score submissions per wallet per window.
const (
	scoreRateLimit  = 30
	scoreRateWindow = time.Minute
)

// base58Alphabet is the Bitcoin base58 alphabet used by wallet addresses.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ScoreService validates and records submitted game scores. Players are
// created lazily on first submission.
type ScoreService struct {
	players domain.PlayerStore
	limiter domain.RateLimiter // may be nil
	logger  *slog.Logger
}

// NewScoreService creates a ScoreService. limiter may be nil to disable
// submission throttling.
func NewScoreService(players domain.PlayerStore, limiter domain.RateLimiter, logger *slog.Logger) *ScoreService {
	return &ScoreService{
		players: players,
		limiter: limiter,
		logger:  logger,
	}
}

// ErrRateLimited is returned when a wallet exceeds the submission rate.
var ErrRateLimited = fmt.Errorf("score submissions rate limited: %w", domain.ErrValidation)

// Submit records a score for the wallet, creating the player on first use,
// and returns the player.
func (s *ScoreService) Submit(ctx context.Context, walletAddress string, value int64, sessionID string) (domain.Player, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if err := ValidateWallet(walletAddress); err != nil {
		return domain.Player{}, err
	}
	if value <= 0 {
		return domain.Player{}, fmt.Errorf("score_service: score must be positive, got %d: %w", value, domain.ErrValidation)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "scores:"+walletAddress, scoreRateLimit, scoreRateWindow)
		if err != nil {
			// Redis being down must not block score intake.
			s.logger.WarnContext(ctx, "score_service: rate limiter unavailable",
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.Player{}, ErrRateLimited
		}
	}

	player, err := s.players.GetOrCreate(ctx, walletAddress)
	if err != nil {
		return domain.Player{}, fmt.Errorf("score_service: resolve player: %w", err)
	}

	if err := s.players.AddScore(ctx, player.ID, value, sessionID); err != nil {
		return domain.Player{}, fmt.Errorf("score_service: add score: %w", err)
	}

	s.logger.InfoContext(ctx, "score_service: score recorded",
		slog.Int64("player_id", player.ID),
		slog.Int64("value", value),
	)

	return player, nil
}

// Leaderboard returns up to limit all-time leaderboard entries.
func (s *ScoreService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.players.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("score_service: leaderboard: %w", err)
	}
	return entries, nil
}

// ValidateWallet checks that an address is plausible base58 of the right
// length. It does not verify the address exists on chain.
func ValidateWallet(address string) error {
	if len(address) < minWalletLen || len(address) > maxWalletLen {
		return fmt.Errorf("score_service: wallet address length %d out of range: %w", len(address), domain.ErrValidation)
	}
	for _, r := range address {
		if !strings.ContainsRune(base58Alphabet, r) {
			return fmt.Errorf("score_service: wallet address has invalid character %q: %w", r, domain.ErrValidation)
		}
	}
	return nil
}
