// Package service coordinates the stream session with its read side: the
// projection served to collaborators, the bus publisher and the audit
// trail.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/metaquote/internal/directory"
	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/ledger"
	"github.com/alanyoungcy/metaquote/internal/projection"
	"github.com/alanyoungcy/metaquote/internal/stream"
)

// Message types carried in bus envelopes.
const (
	MessageQuotes = "quotes"
	MessageStatus = "status"
)

// recordQueueSize bounds pending audit writes; the quote path never waits on
// the database.
const recordQueueSize = 1024

// Envelope is the JSON document published on the bus and pushed to
// WebSocket clients.
type Envelope struct {
	Type      string `json:"type"`
	StreamKey string `json:"streamKey,omitempty"`
	Payload   any    `json:"payload"`
}

// Options carries the optional backends of a QuoteService. Nil fields are
// skipped.
type Options struct {
	Bus         domain.SignalBus
	Snapshots   domain.SnapshotCache
	SnapshotTTL time.Duration
	Quotes      domain.QuoteStore
	Events      domain.StreamEventStore
	// Directory reloads the provider directory on RefreshAggregators.
	Directory directory.Fetcher
}

// QuoteService exposes the collaborator view of one stream session and
// mirrors every change to the configured backends.
type QuoteService struct {
	session *stream.Session
	ledger  *ledger.Ledger
	dir     *directory.Directory
	dirty   *Dirty
	opts    Options

	records chan record
	events  chan domain.StreamEvent
	logger  *slog.Logger
}

type record struct {
	streamKey string
	entry     domain.LedgerEntry
}

// NewQuoteService wires hooks on session so that accepted quotes and state
// changes reach the publisher and the audit trail. dirty must be the same
// signal the ledger reports changes to.
func NewQuoteService(
	session *stream.Session,
	l *ledger.Ledger,
	dir *directory.Directory,
	dirty *Dirty,
	opts Options,
	logger *slog.Logger,
) *QuoteService {
	s := &QuoteService{
		session: session,
		ledger:  l,
		dir:     dir,
		dirty:   dirty,
		opts:    opts,
		records: make(chan record, recordQueueSize),
		events:  make(chan domain.StreamEvent, 64),
		logger:  logger.With(slog.String("component", "quote_service")),
	}
	session.OnQuote(s.onQuote)
	session.OnStateChange(s.onStateChange)
	return s
}

// View returns the current collaborator view.
func (s *QuoteService) View() projection.View {
	return projection.Build(s.session.IsConnected(), s.ledger.Snapshot(), s.dir)
}

// Status returns the session status.
func (s *QuoteService) Status() stream.Status {
	return s.session.Status()
}

// StreamKey identifies the current subscription's chain and pair, or "" when
// the session was never enabled.
func (s *QuoteService) StreamKey() string {
	p, ok := s.session.Params()
	if !ok {
		return ""
	}
	return p.Key()
}

// Enable subscribes with p, replacing any subscription with different
// parameters.
func (s *QuoteService) Enable(ctx context.Context, p domain.StreamParameters) error {
	return s.session.Enable(ctx, p)
}

// Reconnect reopens the current subscription.
func (s *QuoteService) Reconnect(ctx context.Context) error {
	return s.session.Reconnect(ctx)
}

// Disable closes the subscription and clears the ledger.
func (s *QuoteService) Disable() {
	s.session.Disable()
}

// Aggregators returns the loaded provider directory.
func (s *QuoteService) Aggregators() []domain.ProviderMeta {
	return s.dir.All()
}

// RefreshAggregators reloads the provider directory. A failed fetch empties
// the directory the same way the startup load does.
func (s *QuoteService) RefreshAggregators(ctx context.Context) ([]domain.ProviderMeta, error) {
	if s.opts.Directory == nil {
		return nil, fmt.Errorf("quote_service: refresh aggregators: %w", domain.ErrUnavailable)
	}
	s.dir.Load(ctx, s.opts.Directory)
	s.dirty.Mark()
	return s.dir.All(), nil
}

// History lists recorded quotes for the current stream, newest first.
func (s *QuoteService) History(ctx context.Context, opts domain.ListOpts) ([]domain.QuoteObservation, error) {
	if s.opts.Quotes == nil {
		return nil, fmt.Errorf("quote_service: history: %w", domain.ErrUnavailable)
	}
	key := s.StreamKey()
	if key == "" {
		return []domain.QuoteObservation{}, nil
	}
	obs, err := s.opts.Quotes.ListRecent(ctx, key, opts)
	if err != nil {
		return nil, fmt.Errorf("quote_service: history: %w", err)
	}
	return obs, nil
}

// Events lists stream lifecycle events, newest first.
func (s *QuoteService) Events(ctx context.Context, opts domain.ListOpts) ([]domain.StreamEvent, error) {
	if s.opts.Events == nil {
		return nil, fmt.Errorf("quote_service: events: %w", domain.ErrUnavailable)
	}
	evs, err := s.opts.Events.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("quote_service: events: %w", err)
	}
	return evs, nil
}

// QuotesMessage returns the serialized quotes envelope for the current view.
func (s *QuoteService) QuotesMessage() ([]byte, error) {
	return json.Marshal(Envelope{Type: MessageQuotes, StreamKey: s.StreamKey(), Payload: s.View()})
}

func (s *QuoteService) onQuote(e domain.LedgerEntry) {
	if s.opts.Quotes == nil {
		return
	}
	key := s.StreamKey()
	select {
	case s.records <- record{streamKey: key, entry: e}:
	default:
		s.logger.Warn("audit queue full, dropping quote", slog.String("aggregator", string(e.Provider)))
	}
}

func (s *QuoteService) onStateChange(c stream.StateChange) {
	s.dirty.Mark()
	if s.opts.Events == nil {
		return
	}
	ev := domain.StreamEvent{
		SubscriptionID: c.SubscriptionID,
		StreamKey:      c.Params.Key(),
		Event:          c.To.String(),
		Detail:         map[string]any{"from": c.From.String()},
	}
	if c.Err != nil {
		ev.Detail["error"] = c.Err.Error()
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event queue full, dropping stream event", slog.String("event", ev.Event))
	}
}
