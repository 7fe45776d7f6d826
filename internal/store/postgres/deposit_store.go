package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/degenflap/feeflow/internal/domain"
)

// DepositStore implements domain.DepositStore using PostgreSQL.
type DepositStore struct {
	pool *pgxpool.Pool
}

// NewDepositStore creates a new DepositStore backed by the given connection pool.
func NewDepositStore(pool *pgxpool.Pool) *DepositStore {
	return &DepositStore{pool: pool}
}

const depositSelectCols = `id, tx_sig, amount_lamports, amount_sol, amount_usd, observed_at`

func scanDepositRows(rows pgx.Rows) ([]domain.FeeDeposit, error) {
	var deposits []domain.FeeDeposit
	for rows.Next() {
		var d domain.FeeDeposit
		if err := rows.Scan(
			&d.ID, &d.TxSig, &d.AmountLamports,
			&d.AmountSol, &d.AmountUSD, &d.ObservedAt,
		); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// Record inserts a deposit and increments the aggregate's cumulative USD in a
// single transaction. A duplicate tx_sig makes the whole call a no-op: the
// method returns false and the aggregate is left untouched.
func (s *DepositStore) Record(ctx context.Context, deposit domain.FeeDeposit, aggregateID int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin record deposit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO fee_deposits (tx_sig, amount_lamports, amount_sol, amount_usd, observed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_sig) DO NOTHING`,
		deposit.TxSig, deposit.AmountLamports, deposit.AmountSol, deposit.AmountUSD, deposit.ObservedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert deposit %s: %w", deposit.TxSig, err)
	}
	if tag.RowsAffected() == 0 {
		// Already recorded by an earlier poll or a concurrent worker.
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE fee_aggregate
		SET cumulative_usd = cumulative_usd + $1, updated_at = NOW()
		WHERE id = $2`,
		deposit.AmountUSD, aggregateID,
	); err != nil {
		return false, fmt.Errorf("postgres: increment aggregate for %s: %w", deposit.TxSig, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit record deposit %s: %w", deposit.TxSig, err)
	}
	return true, nil
}

// Exists reports whether a deposit with the given chain signature has been
// recorded.
func (s *DepositStore) Exists(ctx context.Context, txSig string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM fee_deposits WHERE tx_sig = $1)", txSig,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: deposit exists %s: %w", txSig, err)
	}
	return exists, nil
}

// ListRecent returns the most recently observed deposits, newest first.
func (s *DepositStore) ListRecent(ctx context.Context, limit int) ([]domain.FeeDeposit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+depositSelectCols+` FROM fee_deposits ORDER BY observed_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent deposits: %w", err)
	}
	defer rows.Close()

	deposits, err := scanDepositRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent deposits: %w", err)
	}
	return deposits, nil
}

// ListBefore returns all deposits observed strictly before the given time
// (for archiving), oldest first.
func (s *DepositStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FeeDeposit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+depositSelectCols+` FROM fee_deposits WHERE observed_at < $1 ORDER BY observed_at ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deposits before: %w", err)
	}
	defer rows.Close()
	return scanDepositRows(rows)
}

// DeleteBefore deletes all deposits observed before the given time. Returns
// the number deleted.
func (s *DepositStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fee_deposits WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete deposits before: %w", err)
	}
	return tag.RowsAffected(), nil
}
