package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// Dirty is a coalescing change signal: any number of Mark calls between two
// receives produce one wake-up.
type Dirty struct {
	ch chan struct{}
}

// NewDirty creates a change signal.
func NewDirty() *Dirty {
	return &Dirty{ch: make(chan struct{}, 1)}
}

// Mark records a change. It never blocks.
func (d *Dirty) Mark() {
	select {
	case d.ch <- struct{}{}:
	default:
	}
}

// C is readable after at least one Mark.
func (d *Dirty) C() <-chan struct{} {
	return d.ch
}

// Run publishes the view on every change and drains the audit queues until
// ctx is cancelled.
func (s *QuoteService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.publishLoop(ctx) })
	g.Go(func() error { return s.recordLoop(ctx) })
	return g.Wait()
}

func (s *QuoteService) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.dirty.C():
			s.publish(ctx)
		}
	}
}

// publish sends the quotes and status envelopes. Failures are logged and the
// next change retries with fresh state.
func (s *QuoteService) publish(ctx context.Context) {
	key := s.StreamKey()
	quotes, err := s.QuotesMessage()
	if err != nil {
		s.logger.Error("marshal quotes", slog.String("error", err.Error()))
		return
	}

	if s.opts.Bus != nil {
		if err := s.opts.Bus.Publish(ctx, domain.ChannelQuotes, quotes); err != nil {
			s.logger.Warn("publish quotes failed", slog.String("error", err.Error()))
		}
		status, err := json.Marshal(Envelope{Type: MessageStatus, StreamKey: key, Payload: s.Status()})
		if err == nil {
			if err := s.opts.Bus.Publish(ctx, domain.ChannelStatus, status); err != nil {
				s.logger.Warn("publish status failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.opts.Snapshots != nil && key != "" {
		if err := s.opts.Snapshots.SetSnapshot(ctx, key, quotes, s.opts.SnapshotTTL); err != nil {
			s.logger.Warn("store snapshot failed",
				slog.String("stream_key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *QuoteService) recordLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.records:
			if err := s.opts.Quotes.Record(ctx, r.streamKey, r.entry); err != nil {
				s.logger.Warn("record quote failed",
					slog.String("aggregator", string(r.entry.Provider)),
					slog.String("error", err.Error()),
				)
			}
		case ev := <-s.events:
			if err := s.opts.Events.Append(ctx, ev); err != nil {
				s.logger.Warn("record stream event failed",
					slog.String("event", ev.Event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
