// Package metastream is the client for the meta-aggregator HTTP API: the
// server-sent event quote feed and the aggregator directory.
package metastream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	sse "github.com/r3labs/sse/v2"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// MessageEvent is the name given to events sent without an "event:" field.
const MessageEvent = "message"

// maxEventSize bounds a single buffered event.
const maxEventSize = 1 << 20

// Event is one dispatched server-sent event. Data is validated JSON; an
// empty data field is delivered as JSON null.
type Event struct {
	Name string
	ID   string
	Data json.RawMessage
}

// Listener receives events. Listeners run synchronously on the read loop.
type Listener func(Event)

// Stream is a single server-sent event connection. It never reconnects on
// its own; once the read loop exits the Stream is finished and a new one must
// be created.
type Stream struct {
	url        string
	httpClient *http.Client

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	opened  atomic.Bool

	handlerMu        sync.RWMutex
	named            map[string][]Listener
	messageListeners []Listener
	openListeners    []func()
	errorListeners   []func(error)

	// done is closed when the read loop exits.
	done     chan struct{}
	doneOnce sync.Once
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithHTTPClient sets the HTTP client used for the streaming request. The
// client must not set a Timeout, which would cut the stream.
func WithHTTPClient(c *http.Client) StreamOption {
	return func(s *Stream) { s.httpClient = c }
}

// NewStream creates an unconnected Stream for url.
func NewStream(url string, opts ...StreamOption) *Stream {
	s := &Stream{
		url:        url,
		httpClient: defaultStreamClient(),
		named:      make(map[string][]Listener),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func defaultStreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// On registers a listener for events with the given name.
func (s *Stream) On(name string, l Listener) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.named[name] = append(s.named[name], l)
}

// OnMessage registers a listener for events without an explicit name.
func (s *Stream) OnMessage(l Listener) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.messageListeners = append(s.messageListeners, l)
}

// OnOpen registers a callback invoked once the server accepted the stream.
func (s *Stream) OnOpen(fn func()) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.openListeners = append(s.openListeners, fn)
}

// OnError registers a callback for connection failures and for individual
// events whose payload could not be parsed. Parse errors do not end the
// stream; connection errors do.
func (s *Stream) OnError(fn func(error)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.errorListeners = append(s.errorListeners, fn)
}

// Connect starts the streaming request in the background and returns
// immediately. Failures are reported through OnError.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metastream: connect: %w", domain.ErrStreamClosed)
	}
	if s.started {
		return errors.New("metastream: connect: already started")
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
	return nil
}

// Close terminates the connection. It is safe to call more than once and on
// a Stream that was never connected.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		s.finish()
	}
	return nil
}

// Done is closed once the stream has stopped reading.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Stream) run(ctx context.Context) {
	defer s.finish()

	c := sse.NewClient(s.url, sse.ClientMaxBufferSize(maxEventSize))
	c.Connection = s.httpClient
	c.Headers = map[string]string{"Accept": "text/event-stream"}
	// One connection per Stream; the caller decides when to reopen.
	c.ReconnectStrategy = &backoff.StopBackOff{}
	c.ResponseValidator = s.validate

	err := c.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		s.dispatch(string(msg.Event), string(msg.ID), msg.Data)
	})
	if !s.opened.Load() {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		s.fail(fmt.Errorf("metastream: connect: %w", err))
		return
	}
	if err == nil {
		err = io.EOF
	}
	s.fail(fmt.Errorf("metastream: read: %w: %w", domain.ErrStreamClosed, err))
}

// validate accepts the response only for a 2xx text/event-stream reply. The
// body is closed here on rejection.
func (s *Stream) validate(_ *sse.Client, resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return checkHTTPStatus(resp.StatusCode, body)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	s.opened.Store(true)
	if !s.isClosed() {
		s.emitOpen()
	}
	return nil
}

// fail reports a connection-level error unless the stream was closed by
// the caller, in which case the error is the expected result of Close.
func (s *Stream) fail(err error) {
	if s.isClosed() {
		return
	}
	s.emitError(err)
}

func (s *Stream) dispatch(name, id string, payload []byte) {
	if s.isClosed() {
		return
	}
	if name == "" {
		name = MessageEvent
	}

	raw := json.RawMessage("null")
	if len(bytes.TrimSpace(payload)) > 0 {
		if !json.Valid(payload) {
			s.emitError(fmt.Errorf("metastream: %w: event %q carries invalid JSON", domain.ErrMalformedEvent, name))
			return
		}
		raw = append(json.RawMessage(nil), payload...)
	}
	ev := Event{Name: name, ID: id, Data: raw}

	s.handlerMu.RLock()
	var listeners []Listener
	if name == MessageEvent {
		listeners = s.messageListeners
	} else {
		listeners = s.named[name]
	}
	s.handlerMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (s *Stream) emitOpen() {
	s.handlerMu.RLock()
	fns := s.openListeners
	s.handlerMu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *Stream) emitError(err error) {
	s.handlerMu.RLock()
	fns := s.errorListeners
	s.handlerMu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}
