// Package stream manages the lifecycle of one live quote subscription: it
// opens the feed for a set of stream parameters, translates feed events into
// ledger writes and tears the subscription down when the parameters change.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/ledger"
	"github.com/alanyoungcy/metaquote/internal/platform/metastream"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// open reports whether a transport is live in this state.
func (s State) open() bool {
	return s == StateConnecting || s == StateConnected || s == StateError
}

// StateChange describes one transition.
type StateChange struct {
	From           State
	To             State
	Err            error
	SubscriptionID string
	Params         domain.StreamParameters
}

// Status is a point-in-time view of the session.
type Status struct {
	State           State                    `json:"state"`
	Connected       bool                     `json:"isConnected"`
	Error           string                   `json:"error,omitempty"`
	SubscriptionID  string                   `json:"subscriptionId,omitempty"`
	Params          *domain.StreamParameters `json:"params,omitempty"`
	MalformedEvents uint64                   `json:"malformedEvents"`
}

// Config configures a Session.
type Config struct {
	// BaseURL is the feed server root; the swap stream path is appended.
	BaseURL string
	// Now returns the arrival time of events. Defaults to time.Now.
	Now func() time.Time
}

// Session owns one Transport connection and write access to the Ledger.
// Every feed callback is bound to the generation it was opened with and is
// discarded once the session has moved on.
type Session struct {
	transport Transport
	ledger    *ledger.Ledger
	baseURL   string
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	connected bool
	err       error
	params    domain.StreamParameters
	hasParams bool
	conn      Conn
	dead      bool // conn reported a transport failure
	gen       uint64
	subID     string
	malformed uint64

	hookMu  sync.RWMutex
	onState []func(StateChange)
	onQuote []func(domain.LedgerEntry)
}

// New creates an idle Session writing into l.
func New(t Transport, l *ledger.Ledger, cfg Config, logger *slog.Logger) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		transport: t,
		ledger:    l,
		baseURL:   cfg.BaseURL,
		now:       cfg.Now,
		logger:    logger.With(slog.String("component", "stream_session")),
		state:     StateIdle,
	}
}

// OnStateChange registers a hook called after every state transition.
func (s *Session) OnStateChange(fn func(StateChange)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onState = append(s.onState, fn)
}

// OnQuote registers a hook called after every quote the ledger accepted.
func (s *Session) OnQuote(fn func(domain.LedgerEntry)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onQuote = append(s.onQuote, fn)
}

// Enable subscribes with p. If a subscription with equal parameters is
// already open and its transport has not failed it is reused. Otherwise the previous transport is closed, the
// ledger cleared and a new transport opened immediately.
func (s *Session) Enable(ctx context.Context, p domain.StreamParameters) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("stream: enable: %w", err)
	}

	s.mu.Lock()
	if s.conn != nil && !s.dead && s.state.open() && s.params.Equal(p) {
		s.mu.Unlock()
		return nil
	}

	var changes []StateChange
	s.closeLocked()
	s.ledger.Clear()
	s.params = p
	s.hasParams = true
	err := s.openLocked(ctx, &changes)
	s.mu.Unlock()

	s.notifyState(changes)
	return err
}

// Reconnect closes the current transport and opens a new one with the same
// parameters. The ledger is kept.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasParams {
		s.mu.Unlock()
		return fmt.Errorf("stream: reconnect: %w: session was never enabled", domain.ErrInvalidParams)
	}

	var changes []StateChange
	s.closeLocked()
	err := s.openLocked(ctx, &changes)
	s.mu.Unlock()

	s.notifyState(changes)
	return err
}

// Disable closes the transport and clears the ledger. It is idempotent.
func (s *Session) Disable() {
	s.mu.Lock()
	var changes []StateChange
	if s.state != StateClosed {
		s.closeLocked()
		s.ledger.Clear()
		s.setStateLocked(StateClosed, nil, &changes)
	}
	s.mu.Unlock()

	s.notifyState(changes)
}

// Close tears the session down. It is equivalent to Disable.
func (s *Session) Close() error {
	s.Disable()
	return nil
}

// Status returns the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:           s.state,
		Connected:       s.connected,
		SubscriptionID:  s.subID,
		MalformedEvents: s.malformed,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if s.hasParams {
		p := s.params
		st.Params = &p
	}
	return st
}

// IsConnected reports whether the feed is currently connected.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Params returns the parameters of the current or last subscription.
func (s *Session) Params() (domain.StreamParameters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params, s.hasParams
}

// closeLocked closes the live transport, if any, and invalidates its
// callbacks. Caller must hold s.mu.
func (s *Session) closeLocked() {
	s.gen++
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("close transport failed",
				slog.String("subscription_id", s.subID),
				slog.String("error", err.Error()),
			)
		}
		s.conn = nil
	}
	s.dead = false
	s.connected = false
}

// openLocked opens a transport for s.params. Caller must hold s.mu.
func (s *Session) openLocked(ctx context.Context, changes *[]StateChange) error {
	s.gen++
	gen := s.gen
	s.subID = uuid.NewString()
	s.err = nil
	s.connected = false
	s.setStateLocked(StateConnecting, nil, changes)

	url := metastream.SwapStreamURL(s.baseURL, s.params)
	s.logger.Info("opening quote stream",
		slog.String("subscription_id", s.subID),
		slog.Int64("chain_id", s.params.ChainID),
		slog.String("pair", s.params.Key()),
		slog.String("amount", s.params.Amount),
	)

	// The subscription outlives the caller (often an HTTP request); only
	// Disable, Close or a later Enable end it.
	conn, err := s.transport.Open(context.WithoutCancel(ctx), url, Handlers{
		OnOpen:  func() { s.handleOpen(gen) },
		OnEvent: func(name string, data json.RawMessage) { s.handleEvent(gen, name, data) },
		OnError: func(err error) { s.handleError(gen, err) },
	})
	if err != nil {
		err = fmt.Errorf("stream: open: %w", err)
		s.err = err
		s.setStateLocked(StateError, err, changes)
		return err
	}
	s.conn = conn
	return nil
}

// setStateLocked records a transition. Caller must hold s.mu.
func (s *Session) setStateLocked(to State, err error, changes *[]StateChange) {
	if s.state == to && err == nil {
		return
	}
	*changes = append(*changes, StateChange{
		From:           s.state,
		To:             to,
		Err:            err,
		SubscriptionID: s.subID,
		Params:         s.params,
	})
	s.state = to
}

// current reports whether callbacks of generation gen are still live.
// Caller must hold s.mu.
func (s *Session) current(gen uint64) bool {
	return gen == s.gen && s.conn != nil && s.state.open()
}

func (s *Session) handleOpen(gen uint64) {
	s.dispatch(gen, Event{Kind: KindConnected, Name: "open"})
}

func (s *Session) handleEvent(gen uint64, name string, data json.RawMessage) {
	ev, err := Decode(name, data)
	if err != nil {
		s.handleError(gen, err)
		return
	}
	s.dispatch(gen, ev)
}

func (s *Session) handleError(gen uint64, err error) {
	var changes []StateChange

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	subID := s.subID
	if errors.Is(err, domain.ErrMalformedEvent) {
		// Isolated to one event; the stream keeps going.
		s.malformed++
		s.mu.Unlock()
		s.logger.Warn("dropped malformed stream event",
			slog.String("subscription_id", subID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.err = err
	s.dead = true
	s.connected = false
	s.setStateLocked(StateError, err, &changes)
	s.mu.Unlock()

	s.logger.Warn("quote stream transport error",
		slog.String("subscription_id", subID),
		slog.String("error", err.Error()),
	)
	s.notifyState(changes)
}

// dispatch applies one typed event to the state machine.
func (s *Session) dispatch(gen uint64, ev Event) {
	var (
		changes  []StateChange
		entry    domain.LedgerEntry
		accepted bool
	)

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	switch ev.Kind {
	case KindConnected:
		s.connected = true
		s.err = nil
		s.setStateLocked(StateConnected, nil, &changes)
	case KindQuote:
		// Arrival time is the time of receipt, never the payload timestamp.
		entry, accepted = s.ledger.Upsert(ev.Provider, ev.Quote, s.now().UnixMilli())
	case KindError:
		err := fmt.Errorf("%w: %s", domain.ErrServerReported, ev.Message)
		s.err = err
		s.connected = false
		s.setStateLocked(StateError, err, &changes)
	case KindHeartbeat:
	default:
		s.logger.Debug("ignoring unknown stream event", slog.String("event", ev.Name))
	}
	subID := s.subID
	s.mu.Unlock()

	if accepted {
		s.logger.Debug("quote accepted",
			slog.String("subscription_id", subID),
			slog.String("aggregator", string(entry.Provider)),
			slog.String("amount_out", entry.Quote.AmountOut),
		)
		s.notifyQuote(entry)
	}
	s.notifyState(changes)
}

func (s *Session) notifyState(changes []StateChange) {
	if len(changes) == 0 {
		return
	}
	s.hookMu.RLock()
	hooks := s.onState
	s.hookMu.RUnlock()

	for _, c := range changes {
		attrs := []any{
			slog.String("from", c.From.String()),
			slog.String("to", c.To.String()),
			slog.String("subscription_id", c.SubscriptionID),
		}
		if c.Err != nil {
			attrs = append(attrs, slog.String("error", c.Err.Error()))
		}
		s.logger.Info("stream state changed", attrs...)
		for _, h := range hooks {
			h(c)
		}
	}
}

func (s *Session) notifyQuote(entry domain.LedgerEntry) {
	s.hookMu.RLock()
	hooks := s.onQuote
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(entry)
	}
}
