package notify

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/metaquote/internal/stream"
)

// StreamAlerts turns session state changes into notifications. Repeated
// errors while already in the error state are not re-sent, and a connect is
// only announced when it recovers from an error.
type StreamAlerts struct {
	n *Notifier

	mu      sync.Mutex
	inError bool
}

// NewStreamAlerts creates an alert adapter for n.
func NewStreamAlerts(n *Notifier) *StreamAlerts {
	return &StreamAlerts{n: n}
}

// Handle is registered with stream.Session.OnStateChange.
func (a *StreamAlerts) Handle(c stream.StateChange) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pair := c.Params.Key()
	switch c.To {
	case stream.StateError:
		if a.inError {
			return
		}
		a.inError = true
		msg := "unknown error"
		if c.Err != nil {
			msg = c.Err.Error()
		}
		a.n.Enqueue(EventStreamError, "Quote stream error",
			fmt.Sprintf("pair %s (subscription %s): %s", pair, c.SubscriptionID, msg))
	case stream.StateConnected:
		if !a.inError {
			return
		}
		a.inError = false
		a.n.Enqueue(EventStreamConnected, "Quote stream recovered",
			fmt.Sprintf("pair %s (subscription %s) is connected again", pair, c.SubscriptionID))
	case stream.StateClosed:
		a.inError = false
		a.n.Enqueue(EventStreamClosed, "Quote stream closed",
			fmt.Sprintf("pair %s (subscription %s) was disabled", pair, c.SubscriptionID))
	}
}
