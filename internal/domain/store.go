package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// QuoteObservation is one accepted quote as recorded in the audit trail.
type QuoteObservation struct {
	ID        string      `json:"id"`
	StreamKey string      `json:"streamKey"`
	Entry     LedgerEntry `json:"entry"`
	CreatedAt time.Time   `json:"createdAt"`
}

// QuoteStore is an append-only audit trail of accepted quotes. It is never
// read back into the ledger.
type QuoteStore interface {
	Record(ctx context.Context, streamKey string, entry LedgerEntry) error
	ListRecent(ctx context.Context, streamKey string, opts ListOpts) ([]QuoteObservation, error)
}

// StreamEvent is one stream lifecycle event: a subscription opened or
// closed, a server-reported error, a transport failure.
type StreamEvent struct {
	ID             int64          `json:"id"`
	SubscriptionID string         `json:"subscriptionId"`
	StreamKey      string         `json:"streamKey"`
	Event          string         `json:"event"`
	Detail         map[string]any `json:"detail,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// StreamEventStore is an append-only log of stream lifecycle events.
type StreamEventStore interface {
	Append(ctx context.Context, ev StreamEvent) error
	List(ctx context.Context, opts ListOpts) ([]StreamEvent, error)
}
