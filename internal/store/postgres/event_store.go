package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/degenflap/feeflow/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, event_type, params, usd_consumed, triggered_at`

func scanEventRows(rows pgx.Rows) ([]domain.GameEvent, error) {
	var events []domain.GameEvent
	for rows.Next() {
		var e domain.GameEvent
		if err := rows.Scan(
			&e.ID, &e.Type, &e.Params, &e.USDConsumed, &e.TriggeredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppendIfConsumed atomically deducts threshold from the aggregate and
// appends the event, but only when the aggregate holds at least threshold.
// The conditional UPDATE is the gate: when it matches no row the aggregate
// was below threshold and nothing is written.
func (s *EventStore) AppendIfConsumed(ctx context.Context, aggregateID int64, threshold decimal.Decimal, event domain.GameEvent) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin append event: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE fee_aggregate
		SET cumulative_usd = cumulative_usd - $1, updated_at = NOW()
		WHERE id = $2 AND cumulative_usd >= $1`,
		threshold, aggregateID,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: consume threshold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO game_events (event_type, params, usd_consumed, triggered_at)
		VALUES ($1, $2, $3, $4)`,
		event.Type, event.Params, event.USDConsumed, event.TriggeredAt,
	); err != nil {
		return false, fmt.Errorf("postgres: insert game event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit append event: %w", err)
	}
	return true, nil
}

// ListRecent returns the most recently triggered events, newest first.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]domain.GameEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM game_events ORDER BY triggered_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent events: %w", err)
	}
	return events, nil
}

// ListBefore returns all events triggered strictly before the given time
// (for archiving), oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.GameEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM game_events WHERE triggered_at < $1 ORDER BY triggered_at ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// DeleteBefore deletes all events triggered before the given time. Returns
// the number deleted.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM game_events WHERE triggered_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}
