package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/stream"
)

type fakeSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier([]Sender{s}, []string{EventStreamError}, discard())

	require.NoError(t, n.Notify(context.Background(), EventStreamError, "err", "m"))
	require.NoError(t, n.Notify(context.Background(), EventStreamClosed, "closed", "m"))
	assert.Equal(t, []string{"err"}, s.sent())
}

func TestNotifyCollectsSenderErrors(t *testing.T) {
	ok := &fakeSender{}
	bad := &fakeSender{err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, discard())

	err := n.Notify(context.Background(), "anything", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Equal(t, []string{"t"}, ok.sent())
}

func TestEnqueueRun(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier([]Sender{s}, nil, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()

	n.Enqueue(EventStreamError, "queued", "m")
	require.Eventually(t, func() bool { return len(s.sent()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestEnqueueWithoutSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	assert.False(t, n.Enabled())
	n.Enqueue(EventStreamError, "t", "m")
	assert.Empty(t, n.queue)
}

func TestStreamAlertsDedupesErrors(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier([]Sender{s}, nil, discard())
	a := NewStreamAlerts(n)
	p := domain.StreamParameters{ChainID: 999}

	a.Handle(stream.StateChange{To: stream.StateConnecting, Params: p})
	a.Handle(stream.StateChange{To: stream.StateConnected, Params: p})
	a.Handle(stream.StateChange{To: stream.StateError, Err: errors.New("x"), Params: p})
	a.Handle(stream.StateChange{To: stream.StateError, Err: errors.New("y"), Params: p})
	a.Handle(stream.StateChange{To: stream.StateConnected, Params: p})
	a.Handle(stream.StateChange{To: stream.StateClosed, Params: p})

	var titles []string
	for len(n.queue) > 0 {
		titles = append(titles, (<-n.queue).title)
	}
	assert.Equal(t, []string{"Quote stream error", "Quote stream recovered", "Quote stream closed"}, titles)
}

func TestTelegramSender(t *testing.T) {
	type request struct {
		path string
		body map[string]string
	}
	reqs := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		reqs <- request{path: r.URL.Path, body: body}
	}))
	defer srv.Close()

	ts := NewTelegramSender("tok", "42")
	ts.apiBase = srv.URL
	require.NoError(t, ts.Send(context.Background(), "Title", "body"))

	got := <-reqs
	assert.Equal(t, "/bottok/sendMessage", got.path)
	assert.Equal(t, "42", got.body["chat_id"])
	assert.Equal(t, "*Title*\nbody", got.body["text"])
}

func TestDiscordSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 404")
}
