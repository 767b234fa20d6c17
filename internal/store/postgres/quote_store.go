package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// QuoteStore implements domain.QuoteStore using PostgreSQL.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// Record appends one accepted quote. The full quote is kept as JSONB; the
// output amount is also stored as NUMERIC when it parses, for ad hoc queries.
func (s *QuoteStore) Record(ctx context.Context, streamKey string, entry domain.LedgerEntry) error {
	quoteJSON, err := json.Marshal(entry.Quote)
	if err != nil {
		return fmt.Errorf("postgres: marshal quote: %w", err)
	}

	var amountOut *string
	if _, ok := new(big.Int).SetString(entry.Quote.AmountOut, 10); ok {
		amountOut = &entry.Quote.AmountOut
	}

	const query = `
		INSERT INTO quote_observations (id, stream_key, aggregator, amount_out, arrival_ms, quote)
		VALUES ($1, $2, $3, $4::TEXT::NUMERIC, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		uuid.New(), streamKey, string(entry.Provider), amountOut, entry.ArrivalMs, quoteJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: record quote %s: %w", entry.Provider, err)
	}
	return nil
}

// ListRecent returns observations for streamKey, newest first.
func (s *QuoteStore) ListRecent(ctx context.Context, streamKey string, opts domain.ListOpts) ([]domain.QuoteObservation, error) {
	query := `SELECT id, stream_key, aggregator, arrival_ms, quote, created_at
		FROM quote_observations WHERE stream_key = $1`
	args := []any{streamKey}
	argIdx := 2

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

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list quotes %s: %w", streamKey, err)
	}
	defer rows.Close()

	var out []domain.QuoteObservation
	for rows.Next() {
		var (
			o         domain.QuoteObservation
			id        uuid.UUID
			provider  string
			quoteJSON []byte
		)
		if err := rows.Scan(&id, &o.StreamKey, &provider, &o.Entry.ArrivalMs, &quoteJSON, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan quote: %w", err)
		}
		o.ID = id.String()
		o.Entry.Provider = domain.ProviderID(provider)
		if err := json.Unmarshal(quoteJSON, &o.Entry.Quote); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal quote: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list quotes rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.QuoteStore = (*QuoteStore)(nil)
