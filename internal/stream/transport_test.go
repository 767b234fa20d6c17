package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/ledger"
)

func TestSSETransportEndToEnd(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		fmt.Fprint(w, "event: quote\ndata: "+quoteJSON("kyber", "100")+"\n\n")
		fmt.Fprint(w, "data: {\"event\":\"quote\",\"data\":"+quoteJSON("okx", "300")+"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	l := ledger.New()
	s := New(NewSSETransport(), l, Config{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Enable(context.Background(), testParams("1000000")))
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.IsConnected() && l.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, <-queries, "amount=1000000")
	e, ok := l.Get("okx")
	require.True(t, ok)
	assert.Equal(t, "300", e.Quote.AmountOut)
}

func TestSSETransportHangupMovesToError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	}))
	defer srv.Close()

	s := New(NewSSETransport(), ledger.New(), Config{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Enable(context.Background(), testParams("1")))
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.Status().State == StateError
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.IsConnected())
}

func TestSSETransportReenableAfterHangup(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	}))
	defer srv.Close()

	s := New(NewSSETransport(), ledger.New(), Config{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Enable(context.Background(), testParams("1")))
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.Status().State == StateError
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Enable(context.Background(), testParams("1")))
	require.Eventually(t, func() bool {
		return hits.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}
