package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/domain"
)

// AggregateStore implements domain.AggregateStore using PostgreSQL. The
// fee_aggregate table holds a single seeded row; all mutations are one-shot
// SQL statements so concurrent writers never race on a read-then-write.
type AggregateStore struct {
	pool *pgxpool.Pool
}

// NewAggregateStore creates a new AggregateStore backed by the given
// connection pool.
func NewAggregateStore(pool *pgxpool.Pool) *AggregateStore {
	return &AggregateStore{pool: pool}
}

// Get returns the current fee aggregate.
func (s *AggregateStore) Get(ctx context.Context) (domain.FeeAggregate, error) {
	var agg domain.FeeAggregate
	err := s.pool.QueryRow(ctx,
		`SELECT id, cumulative_usd FROM fee_aggregate ORDER BY id ASC LIMIT 1`,
	).Scan(&agg.ID, &agg.CumulativeUSD)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FeeAggregate{}, fmt.Errorf("postgres: get aggregate: %w", domain.ErrNotFound)
		}
		return domain.FeeAggregate{}, fmt.Errorf("postgres: get aggregate: %w", err)
	}
	return agg, nil
}

// Deduct subtracts amount from the aggregate's cumulative USD only when the
// full amount is still available. The threshold engine consumes from the same
// row concurrently, so the guard is part of the statement: when the balance
// dropped below amount since the caller read it, nothing changes and
// domain.ErrInsufficientPool is returned.
func (s *AggregateStore) Deduct(ctx context.Context, id int64, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE fee_aggregate
		SET cumulative_usd = cumulative_usd - $1, updated_at = NOW()
		WHERE id = $2 AND cumulative_usd >= $1`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: deduct aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current decimal.Decimal
		err := s.pool.QueryRow(ctx,
			`SELECT cumulative_usd FROM fee_aggregate WHERE id = $1`, id,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: deduct aggregate %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: deduct aggregate %d: %w", id, err)
		}
		return fmt.Errorf("postgres: deduct %s from aggregate %d holding %s: %w",
			amount.String(), id, current.String(), domain.ErrInsufficientPool)
	}
	return nil
}
