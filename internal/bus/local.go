// Package bus provides an in-process domain.SignalBus for single-replica
// deployments without Redis.
package bus

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

const subscriberBuffer = 64

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Local fans published payloads out to in-process subscribers. Channel
// names support the same glob patterns as Redis PSUBSCRIBE for the common
// cases ("*", "?", "[...]").
type Local struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewLocal creates an empty Local bus.
func NewLocal() *Local {
	return &Local{subs: make(map[*subscriber]struct{})}
}

// Publish delivers payload to every matching subscriber. A subscriber whose
// buffer is full loses its oldest payload.
func (b *Local) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return domain.ErrStreamClosed
	}
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		deliver(s.ch, append([]byte(nil), payload...))
	}
	return nil
}

// deliver sends payload, evicting the oldest buffered payload when full.
// Callers hold b.mu, so there is a single sender.
func deliver(ch chan []byte, payload []byte) {
	for {
		select {
		case ch <- payload:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel of payloads for channel. It is closed when ctx
// is cancelled or the bus is closed.
func (b *Local) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, domain.ErrStreamClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

// Close closes every subscriber channel.
func (b *Local) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

func (b *Local) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Compile-time interface check.
var _ domain.SignalBus = (*Local)(nil)
