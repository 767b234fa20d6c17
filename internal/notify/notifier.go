// Package notify provides a multi-channel notification system for stream
// alerts. Notifications are dispatched to all registered senders (Telegram,
// Discord) and filtered by event type so operators receive only the alerts
// they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types understood by the notifier.
const (
	EventStreamError     = "stream_error"
	EventStreamConnected = "stream_connected"
	EventStreamClosed    = "stream_closed"
)

// queueSize bounds pending notifications. Alerts beyond it are dropped.
const queueSize = 32

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

type notification struct {
	event   string
	title   string
	message string
}

// Notifier dispatches notifications to one or more Senders. Notify is
// synchronous; Enqueue hands the notification to the Run loop so callers on
// the stream event path never wait on a webhook.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	queue   chan notification
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded. If events is
// empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan notification, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allowed(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Enqueue schedules a notification for the Run loop. It never blocks; when
// the queue is full the notification is dropped and logged.
func (n *Notifier) Enqueue(event, title, message string) {
	if !n.Enabled() || !n.allowed(event) {
		return
	}
	select {
	case n.queue <- notification{event: event, title: title, message: message}:
	default:
		n.logger.Warn("notification queue full, dropping", slog.String("event", event))
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-n.queue:
			// Failures are logged by dispatch.
			_ = n.dispatch(ctx, note.title, note.message)
		}
	}
}

func (n *Notifier) allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// dispatch sends to every sender. Errors are collected and returned as a
// combined error; one failing sender does not block the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
