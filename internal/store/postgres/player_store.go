package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/degenflap/feeflow/internal/domain"
)

// PlayerStore implements domain.PlayerStore using PostgreSQL.
type PlayerStore struct {
	pool *pgxpool.Pool
}

// NewPlayerStore creates a new PlayerStore backed by the given connection pool.
func NewPlayerStore(pool *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

// GetOrCreate returns the player with the given wallet address, creating the
// row on first use. The upsert keeps concurrent first submissions from the
// same wallet from racing.
func (s *PlayerStore) GetOrCreate(ctx context.Context, walletAddress string) (domain.Player, error) {
	var p domain.Player
	err := s.pool.QueryRow(ctx, `
		INSERT INTO players (wallet_address)
		VALUES ($1)
		ON CONFLICT (wallet_address) DO UPDATE SET wallet_address = EXCLUDED.wallet_address
		RETURNING id, wallet_address, display_name, created_at`,
		walletAddress,
	).Scan(&p.ID, &p.WalletAddress, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return domain.Player{}, fmt.Errorf("postgres: get or create player %s: %w", walletAddress, err)
	}
	return p, nil
}

// GetByID returns the player with the given ID, or domain.ErrNotFound.
func (s *PlayerStore) GetByID(ctx context.Context, id int64) (domain.Player, error) {
	var p domain.Player
	err := s.pool.QueryRow(ctx,
		`SELECT id, wallet_address, display_name, created_at FROM players WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.WalletAddress, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Player{}, fmt.Errorf("postgres: get player %d: %w", id, domain.ErrNotFound)
		}
		return domain.Player{}, fmt.Errorf("postgres: get player %d: %w", id, err)
	}
	return p, nil
}

// AddScore appends a score row for the player.
func (s *PlayerStore) AddScore(ctx context.Context, playerID int64, value int64, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO scores (player_id, value, session_id) VALUES ($1, $2, $3)`,
		playerID, value, sessionID,
	); err != nil {
		return fmt.Errorf("postgres: add score for player %d: %w", playerID, err)
	}
	return nil
}

// TopScores returns up to limit players ranked by their best score since the
// given time, descending. The DISTINCT ON picks each player's best score and
// the earliest time it was achieved, so equal scores rank the earlier
// achiever first.
func (s *PlayerStore) TopScores(ctx context.Context, since time.Time, limit int) ([]domain.PlayerScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.player_id, p.wallet_address, b.value, b.created_at
		FROM (
			SELECT DISTINCT ON (player_id) player_id, value, created_at
			FROM scores
			WHERE created_at >= $1
			ORDER BY player_id, value DESC, created_at ASC
		) b
		JOIN players p ON p.id = b.player_id
		ORDER BY b.value DESC, b.created_at ASC, b.player_id ASC
		LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: top scores: %w", err)
	}
	defer rows.Close()

	var out []domain.PlayerScore
	for rows.Next() {
		var ps domain.PlayerScore
		if err := rows.Scan(&ps.PlayerID, &ps.WalletAddress, &ps.BestScore, &ps.AchievedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan top scores: %w", err)
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top scores rows: %w", err)
	}
	return out, nil
}

// Leaderboard returns the all-time leaderboard: each player's highest score,
// descending.
func (s *PlayerStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.wallet_address, p.display_name, MAX(s.value) AS high_score
		FROM scores s
		JOIN players p ON p.id = s.player_id
		GROUP BY p.id, p.wallet_address, p.display_name
		ORDER BY high_score DESC, p.id ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.WalletAddress, &e.DisplayName, &e.HighScore); err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return out, nil
}
