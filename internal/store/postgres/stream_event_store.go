package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// StreamEventStore implements domain.StreamEventStore using PostgreSQL.
type StreamEventStore struct {
	pool *pgxpool.Pool
}

// NewStreamEventStore creates a new StreamEventStore backed by the given
// connection pool.
func NewStreamEventStore(pool *pgxpool.Pool) *StreamEventStore {
	return &StreamEventStore{pool: pool}
}

// Append records one lifecycle event. Detail is stored as JSONB.
func (s *StreamEventStore) Append(ctx context.Context, ev domain.StreamEvent) error {
	var detailJSON []byte
	if len(ev.Detail) > 0 {
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal stream event detail: %w", err)
		}
		detailJSON = b
	}

	const query = `
		INSERT INTO stream_events (subscription_id, stream_key, event, detail)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, ev.SubscriptionID, ev.StreamKey, ev.Event, detailJSON); err != nil {
		return fmt.Errorf("postgres: append stream event %s: %w", ev.Event, err)
	}
	return nil
}

// List returns lifecycle events newest first.
func (s *StreamEventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.StreamEvent, error) {
	query := `SELECT id, subscription_id, stream_key, event, detail, created_at FROM stream_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stream events: %w", err)
	}
	defer rows.Close()

	var events []domain.StreamEvent
	for rows.Next() {
		var (
			ev         domain.StreamEvent
			detailJSON []byte
		)
		if err := rows.Scan(&ev.ID, &ev.SubscriptionID, &ev.StreamKey, &ev.Event, &detailJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan stream event: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal stream event detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stream events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.StreamEventStore = (*StreamEventStore)(nil)
