package stream

import (
	"context"
	"encoding/json"

	"github.com/alanyoungcy/metaquote/internal/platform/metastream"
)

// Handlers are the callbacks a Transport delivers to.
type Handlers struct {
	// OnOpen fires when the server accepted the subscription.
	OnOpen func()
	// OnEvent fires for every named feed event with its JSON payload.
	OnEvent func(name string, data json.RawMessage)
	// OnError fires for connection failures and malformed single events.
	OnError func(err error)
}

// Conn is an open subscription.
type Conn interface {
	Close() error
}

// Transport opens feed subscriptions. Implementations must deliver
// callbacks asynchronously, never from inside Open.
type Transport interface {
	Open(ctx context.Context, url string, h Handlers) (Conn, error)
}

// SSETransport opens subscriptions with the metastream server-sent event
// client.
type SSETransport struct {
	opts []metastream.StreamOption
}

// NewSSETransport creates a Transport backed by metastream.Stream.
func NewSSETransport(opts ...metastream.StreamOption) *SSETransport {
	return &SSETransport{opts: opts}
}

// Open connects a new stream and routes its events to h.
func (t *SSETransport) Open(ctx context.Context, url string, h Handlers) (Conn, error) {
	s := metastream.NewStream(url, t.opts...)

	forward := func(ev metastream.Event) {
		if h.OnEvent != nil {
			h.OnEvent(ev.Name, ev.Data)
		}
	}
	for _, name := range []string{EventConnected, EventQuote, EventError, EventHeartbeat} {
		s.On(name, forward)
	}

	// Unnamed messages may wrap a named event as {"event": ..., "data": ...}.
	s.OnMessage(func(ev metastream.Event) {
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if json.Unmarshal(ev.Data, &env) == nil && env.Event != "" {
			ev.Name = env.Event
			ev.Data = env.Data
		}
		forward(ev)
	})
	if h.OnOpen != nil {
		s.OnOpen(h.OnOpen)
	}
	if h.OnError != nil {
		s.OnError(h.OnError)
	}

	// The stream outlives the caller's request context; Close ends it.
	if err := s.Connect(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return s, nil
}
