package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DepositStore persists fee deposits.
type DepositStore interface {
	// Record inserts a deposit and increments the aggregate's cumulative
	// USD in a single transaction. A duplicate tx_sig is a silent no-op:
	// Record returns false and the aggregate is untouched.
	Record(ctx context.Context, deposit FeeDeposit, aggregateID int64) (bool, error)
	Exists(ctx context.Context, txSig string) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]FeeDeposit, error)
	ListBefore(ctx context.Context, before time.Time) ([]FeeDeposit, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AggregateStore persists the running fee aggregate. All mutations are
// single atomic SQL statements so concurrent writers never race on a
// read-then-write of the cumulative value.
type AggregateStore interface {
	Get(ctx context.Context) (FeeAggregate, error)
	// Deduct subtracts amount from the aggregate only when the full amount
	// is still available, returning ErrInsufficientPool otherwise.
	Deduct(ctx context.Context, id int64, amount decimal.Decimal) error
}

// EventStore persists the append-only game event log.
type EventStore interface {
	// AppendIfConsumed atomically deducts threshold from the aggregate and
	// appends the event, but only when the aggregate holds at least
	// threshold. It returns false (and appends nothing) otherwise.
	AppendIfConsumed(ctx context.Context, aggregateID int64, threshold decimal.Decimal, event GameEvent) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]GameEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]GameEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PlayerStore persists players and their scores.
type PlayerStore interface {
	GetOrCreate(ctx context.Context, walletAddress string) (Player, error)
	GetByID(ctx context.Context, id int64) (Player, error)
	AddScore(ctx context.Context, playerID int64, value int64, sessionID string) error
	// TopScores returns up to limit players ranked by their best score
	// since the given time, descending. Ties are broken by the earlier
	// achievement of the score, then by player ID.
	TopScores(ctx context.Context, since time.Time, limit int) ([]PlayerScore, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// PayoutStore persists payout obligations. Status transitions are
// conditional updates so a payout is settled at most once: SENT is terminal
// and MarkSent/MarkFailed only act on a PENDING row.
type PayoutStore interface {
	Create(ctx context.Context, p Payout) error
	GetByID(ctx context.Context, id string) (PayoutDetail, error)
	// MarkSent transitions PENDING → SENT and records the chain signature.
	// It returns ErrAlreadySettled when the payout is not PENDING.
	MarkSent(ctx context.Context, id string, txSig string) error
	// MarkFailed transitions PENDING → FAILED and increments attempt_count.
	MarkFailed(ctx context.Context, id string) error
	// Requeue flips FAILED → PENDING for another settlement attempt. It
	// returns false when the payout is not FAILED, and false with
	// ErrAttemptsExhausted when attempt_count already reached maxAttempts.
	Requeue(ctx context.Context, id string, maxAttempts int) (bool, error)
	ListPending(ctx context.Context, limit int) ([]string, error)
	// ListRetryable returns FAILED payout IDs below the attempt ceiling
	// whose exponential backoff delay (backoff × 2^(attempts-1) since the
	// last update) has elapsed.
	ListRetryable(ctx context.Context, maxAttempts int, backoff time.Duration, limit int) ([]string, error)
	ListRecent(ctx context.Context, limit int) ([]PayoutDetail, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]PayoutDetail, error)
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
}
