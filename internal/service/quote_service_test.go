package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/directory"
	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/ledger"
	"github.com/alanyoungcy/metaquote/internal/stream"
)

type nopConn struct{}

func (nopConn) Close() error { return nil }

type captureTransport struct {
	mu       sync.Mutex
	handlers []stream.Handlers
}

func (t *captureTransport) Open(_ context.Context, _ string, h stream.Handlers) (stream.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
	return nopConn{}, nil
}

func (t *captureTransport) last() stream.Handlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers[len(t.handlers)-1]
}

type memBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][][]byte)
	}
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *memBus) last(channel string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.msgs[channel]
	if len(m) == 0 {
		return nil
	}
	return m[len(m)-1]
}

type memSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
}

func (c *memSnapshots) SetSnapshot(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = payload
	c.ttl = ttl
	return nil
}

func (c *memSnapshots) GetSnapshot(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

type memQuotes struct {
	mu   sync.Mutex
	recs []domain.QuoteObservation
}

func (s *memQuotes) Record(_ context.Context, key string, e domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, domain.QuoteObservation{StreamKey: key, Entry: e})
	return nil
}

func (s *memQuotes) ListRecent(_ context.Context, key string, _ domain.ListOpts) ([]domain.QuoteObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.QuoteObservation
	for _, r := range s.recs {
		if r.StreamKey == key {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memQuotes) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type memEvents struct {
	mu  sync.Mutex
	evs []domain.StreamEvent
}

func (s *memEvents) Append(_ context.Context, ev domain.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
	return nil
}

func (s *memEvents) List(context.Context, domain.ListOpts) ([]domain.StreamEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StreamEvent(nil), s.evs...), nil
}

func (s *memEvents) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.evs))
	for _, ev := range s.evs {
		out = append(out, ev.Event)
	}
	return out
}

func testParams() domain.StreamParameters {
	return domain.StreamParameters{
		ChainID:  999,
		TokenIn:  common.HexToAddress("0xB8CE59FC3717ada4C02eaDF9682A9e934F625ebb"),
		TokenOut: common.Address{},
		Amount:   "10000000",
	}
}

type harness struct {
	svc       *QuoteService
	transport *captureTransport
	bus       *memBus
	snaps     *memSnapshots
	quotes    *memQuotes
	events    *memEvents
}

func newHarness(t *testing.T, withBackends bool, fetcher ...directory.Fetcher) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dirty := NewDirty()
	l := ledger.New(ledger.WithOnChange(dirty.Mark))
	tr := &captureTransport{}
	sess := stream.New(tr, l, stream.Config{BaseURL: "http://feed.test"}, logger)
	dir := directory.New(logger)
	dir.Set([]domain.ProviderMeta{{ID: "kyber", DisplayName: "KyberSwap", LogoURL: "https://logo/kyber.png"}})

	h := &harness{transport: tr}
	var opts Options
	if withBackends {
		h.bus = &memBus{}
		h.snaps = &memSnapshots{}
		h.quotes = &memQuotes{}
		h.events = &memEvents{}
		opts = Options{Bus: h.bus, Snapshots: h.snaps, SnapshotTTL: time.Minute, Quotes: h.quotes, Events: h.events}
	}
	if len(fetcher) > 0 {
		opts.Directory = fetcher[0]
	}
	h.svc = NewQuoteService(sess, l, dir, dirty, opts, logger)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func quote(provider, amountOut string) json.RawMessage {
	return json.RawMessage(`{"aggregator":"` + provider + `","quote":{"status":"ok","amountIn":"10000000","amountOut":"` + amountOut + `"}}`)
}

func TestDirtyCoalesces(t *testing.T) {
	d := NewDirty()
	d.Mark()
	d.Mark()
	d.Mark()

	<-d.C()
	select {
	case <-d.C():
		t.Fatal("expected a single wake-up")
	default:
	}
}

func TestQuoteServicePublishesView(t *testing.T) {
	h := newHarness(t, true)
	h.run(t)

	require.NoError(t, h.svc.Enable(context.Background(), testParams()))
	hs := h.transport.last()
	hs.OnOpen()
	hs.OnEvent(stream.EventConnected, json.RawMessage(`{}`))
	hs.OnEvent(stream.EventQuote, quote("kyber", "500"))
	hs.OnEvent(stream.EventQuote, quote("odos", "900"))

	require.Eventually(t, func() bool {
		raw := h.bus.last(domain.ChannelQuotes)
		if raw == nil {
			return false
		}
		var env struct {
			Type    string `json:"type"`
			Payload struct {
				IsConnected bool `json:"isConnected"`
				BestQuotes  []struct {
					ID          string `json:"id"`
					DisplayName string `json:"displayName"`
				} `json:"bestQuotes"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return false
		}
		return env.Type == MessageQuotes && env.Payload.IsConnected && len(env.Payload.BestQuotes) == 2 &&
			env.Payload.BestQuotes[0].ID == "odos" && env.Payload.BestQuotes[1].DisplayName == "KyberSwap"
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotNil(t, h.bus.last(domain.ChannelStatus))

	key := testParams().Key()
	require.Eventually(t, func() bool {
		b, err := h.snaps.GetSnapshot(context.Background(), key)
		return err == nil && len(b) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQuoteServiceRecordsAuditTrail(t *testing.T) {
	h := newHarness(t, true)
	h.run(t)

	require.NoError(t, h.svc.Enable(context.Background(), testParams()))
	hs := h.transport.last()
	hs.OnOpen()
	hs.OnEvent(stream.EventQuote, quote("kyber", "500"))

	require.Eventually(t, func() bool { return h.quotes.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	obs, err := h.svc.History(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, domain.ProviderID("kyber"), obs[0].Entry.Provider)
	assert.Equal(t, testParams().Key(), obs[0].StreamKey)

	require.Eventually(t, func() bool {
		names := h.events.names()
		return len(names) >= 2 && names[0] == "connecting" && names[1] == "connected"
	}, 2*time.Second, 10*time.Millisecond)

	evs, err := h.svc.Events(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, testParams().Key(), evs[0].StreamKey)
	assert.Equal(t, "idle", evs[0].Detail["from"])
}

func TestQuoteServiceWithoutBackends(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.svc.History(context.Background(), domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	_, err = h.svc.Events(context.Background(), domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	_, err = h.svc.RefreshAggregators(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	assert.Empty(t, h.svc.StreamKey())
	view := h.svc.View()
	assert.False(t, view.IsConnected)
	assert.Empty(t, view.BestQuotes)
	assert.Nil(t, view.LatestQuote)
}

func TestQuoteServiceDisableClearsView(t *testing.T) {
	h := newHarness(t, false)

	require.NoError(t, h.svc.Enable(context.Background(), testParams()))
	hs := h.transport.last()
	hs.OnOpen()
	hs.OnEvent(stream.EventQuote, quote("kyber", "500"))
	require.Len(t, h.svc.View().BestQuotes, 1)

	h.svc.Disable()

	view := h.svc.View()
	assert.False(t, view.IsConnected)
	assert.Empty(t, view.BestQuotes)
	assert.Equal(t, stream.StateClosed, h.svc.Status().State)
}

type stubFetcher struct {
	metas []domain.ProviderMeta
}

func (f stubFetcher) FetchAggregators(context.Context) ([]domain.ProviderMeta, error) {
	return f.metas, nil
}

func TestQuoteServiceRefreshAggregators(t *testing.T) {
	h := newHarness(t, false, stubFetcher{metas: []domain.ProviderMeta{
		{ID: "odos", DisplayName: "Odos"},
	}})

	got, err := h.svc.RefreshAggregators(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Odos", h.svc.Aggregators()[0].DisplayName)
}
