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

// PayoutStore implements domain.PayoutStore using PostgreSQL. Status
// transitions are conditional UPDATEs keyed on the current status, so two
// workers racing on the same payout cannot both settle it.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

const payoutSelectCols = `p.id, p.player_id, p.amount_usd, p.amount_sol, p.status,
	COALESCE(p.tx_sig, ''), p.attempt_count, p.created_at, p.updated_at, pl.wallet_address`

func scanPayoutRows(rows pgx.Rows) ([]domain.PayoutDetail, error) {
	var payouts []domain.PayoutDetail
	for rows.Next() {
		var d domain.PayoutDetail
		if err := rows.Scan(
			&d.ID, &d.PlayerID, &d.AmountUSD, &d.AmountSol, &d.Status,
			&d.TxSig, &d.AttemptCount, &d.CreatedAt, &d.UpdatedAt, &d.WalletAddress,
		); err != nil {
			return nil, err
		}
		payouts = append(payouts, d)
	}
	return payouts, rows.Err()
}

// Create inserts a new payout row.
func (s *PayoutStore) Create(ctx context.Context, p domain.Payout) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO payouts (id, player_id, amount_usd, amount_sol, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		p.ID, p.PlayerID, p.AmountUSD, p.AmountSol, p.Status, p.AttemptCount, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: create payout %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns the payout with the given ID joined with the receiving
// player's wallet, or domain.ErrNotFound.
func (s *PayoutStore) GetByID(ctx context.Context, id string) (domain.PayoutDetail, error) {
	var d domain.PayoutDetail
	err := s.pool.QueryRow(ctx,
		`SELECT `+payoutSelectCols+` FROM payouts p JOIN players pl ON pl.id = p.player_id WHERE p.id = $1`,
		id,
	).Scan(
		&d.ID, &d.PlayerID, &d.AmountUSD, &d.AmountSol, &d.Status,
		&d.TxSig, &d.AttemptCount, &d.CreatedAt, &d.UpdatedAt, &d.WalletAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PayoutDetail{}, fmt.Errorf("postgres: get payout %s: %w", id, domain.ErrNotFound)
		}
		return domain.PayoutDetail{}, fmt.Errorf("postgres: get payout %s: %w", id, err)
	}
	return d, nil
}

// MarkSent transitions PENDING → SENT and records the chain signature. SENT
// is terminal; when the payout is not currently PENDING the call returns
// domain.ErrAlreadySettled (or domain.ErrNotFound for an unknown ID).
func (s *PayoutStore) MarkSent(ctx context.Context, id string, txSig string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payouts
		SET status = $1, tx_sig = $2, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		domain.PayoutStatusSent, txSig, id, domain.PayoutStatusPending,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark payout %s sent: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.settleConflict(ctx, id)
	}
	return nil
}

// MarkFailed transitions PENDING → FAILED and increments the attempt count.
func (s *PayoutStore) MarkFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payouts
		SET status = $1, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.PayoutStatusFailed, id, domain.PayoutStatusPending,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark payout %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.settleConflict(ctx, id)
	}
	return nil
}

// settleConflict distinguishes a missing payout from one whose status already
// moved on.
func (s *PayoutStore) settleConflict(ctx context.Context, id string) error {
	var status domain.PayoutStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM payouts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: payout %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: payout %s status: %w", id, err)
	}
	return fmt.Errorf("postgres: payout %s is %s: %w", id, status, domain.ErrAlreadySettled)
}

// Requeue flips FAILED → PENDING for another settlement attempt. It returns
// false when the payout is not FAILED, and false with
// domain.ErrAttemptsExhausted when the attempt count reached maxAttempts
// between the retry listing and this call.
func (s *PayoutStore) Requeue(ctx context.Context, id string, maxAttempts int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payouts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND attempt_count < $4`,
		domain.PayoutStatusPending, id, domain.PayoutStatusFailed, maxAttempts,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: requeue payout %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var status domain.PayoutStatus
	var attempts int
	err = s.pool.QueryRow(ctx,
		`SELECT status, attempt_count FROM payouts WHERE id = $1`, id,
	).Scan(&status, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("postgres: requeue payout %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: requeue payout %s: %w", id, err)
	}
	if status == domain.PayoutStatusFailed && attempts >= maxAttempts {
		return false, fmt.Errorf("postgres: requeue payout %s after %d attempts: %w",
			id, attempts, domain.ErrAttemptsExhausted)
	}
	return false, nil
}

// ListPending returns IDs of PENDING payouts, oldest first.
func (s *PayoutStore) ListPending(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM payouts WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		domain.PayoutStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending payouts: %w", err)
	}
	defer rows.Close()
	return scanIDRows(rows, "pending payouts")
}

// ListRetryable returns FAILED payout IDs below the attempt ceiling whose
// exponential backoff delay since the last status change has elapsed. The
// delay for attempt n is backoff × 2^(n-1).
func (s *PayoutStore) ListRetryable(ctx context.Context, maxAttempts int, backoff time.Duration, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM payouts
		WHERE status = $1
		  AND attempt_count < $2
		  AND updated_at + $3 * POWER(2, GREATEST(attempt_count, 1) - 1) <= NOW()
		ORDER BY updated_at ASC
		LIMIT $4`,
		domain.PayoutStatusFailed, maxAttempts, backoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list retryable payouts: %w", err)
	}
	defer rows.Close()
	return scanIDRows(rows, "retryable payouts")
}

func scanIDRows(rows pgx.Rows, what string) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return ids, nil
}

// ListRecent returns the most recently created payouts, newest first.
func (s *PayoutStore) ListRecent(ctx context.Context, limit int) ([]domain.PayoutDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutSelectCols+` FROM payouts p JOIN players pl ON pl.id = p.player_id
		 ORDER BY p.created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent payouts: %w", err)
	}
	defer rows.Close()

	payouts, err := scanPayoutRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent payouts: %w", err)
	}
	return payouts, nil
}

// ListSettledBefore returns SENT payouts last updated strictly before the
// given time (for archiving), oldest first.
func (s *PayoutStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.PayoutDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutSelectCols+` FROM payouts p JOIN players pl ON pl.id = p.player_id
		 WHERE p.status = $1 AND p.updated_at < $2 ORDER BY p.updated_at ASC`,
		domain.PayoutStatusSent, before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled payouts before: %w", err)
	}
	defer rows.Close()
	return scanPayoutRows(rows)
}

// DeleteSettledBefore deletes SENT payouts last updated before the given
// time. Returns the number deleted.
func (s *PayoutStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM payouts WHERE status = $1 AND updated_at < $2`,
		domain.PayoutStatusSent, before,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled payouts before: %w", err)
	}
	return tag.RowsAffected(), nil
}
