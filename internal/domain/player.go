package domain

import "time"

// Player is a game participant identified by their wallet address. Players
// are created lazily on first score submission.
type Player struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	DisplayName   string    `json:"display_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Score is one submitted game result. Append-only; score values are always
// positive.
type Score struct {
	ID        int64
	PlayerID  int64
	Value     int64
	SessionID string
	CreatedAt time.Time
}

// PlayerScore is a player's best score within a ranking window, used by the
// payout scheduler. AchievedAt is when the best score was first reached and
// breaks ties between equal scores (earlier wins).
type PlayerScore struct {
	PlayerID      int64
	WalletAddress string
	BestScore     int64
	AchievedAt    time.Time
}

// LeaderboardEntry is one row of the all-time leaderboard.
type LeaderboardEntry struct {
	WalletAddress string `json:"wallet_address"`
	DisplayName   string `json:"display_name,omitempty"`
	HighScore     int64  `json:"high_score"`
}
