package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// Feed event names as sent by the server.
const (
	EventConnected = "connected"
	EventQuote     = "quote"
	EventError     = "error"
	EventHeartbeat = "heartbeat"
)

// Kind discriminates typed stream events.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnected
	KindQuote
	KindError
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return EventConnected
	case KindQuote:
		return EventQuote
	case KindError:
		return EventError
	case KindHeartbeat:
		return EventHeartbeat
	default:
		return "unknown"
	}
}

// Event is a decoded feed event. Provider and Quote are set for KindQuote,
// Message for KindError.
type Event struct {
	Kind     Kind
	Name     string
	Provider domain.ProviderID
	Quote    domain.Quote
	Message  string
}

// defaultErrorMessage is used when an error event carries no message.
const defaultErrorMessage = "Quote stream error"

// wireQuote is a quote as sent inside a quote event. Older payloads repeat
// the aggregator inside the quote object.
type wireQuote struct {
	domain.Quote
	Aggregator string `json:"aggregator"`
}

// quoteEnvelope is the quote event body: {aggregator, quote: {...}, timestamp}.
type quoteEnvelope struct {
	Aggregator string          `json:"aggregator"`
	Quote      json.RawMessage `json:"quote"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// Decode translates a raw feed event into a typed Event. Unknown event
// names decode to KindUnknown without error.
func Decode(name string, data json.RawMessage) (Event, error) {
	switch name {
	case EventConnected:
		return Event{Kind: KindConnected, Name: name}, nil
	case EventHeartbeat:
		return Event{Kind: KindHeartbeat, Name: name}, nil
	case EventError:
		return decodeError(data)
	case EventQuote:
		return decodeQuote(data)
	default:
		return Event{Kind: KindUnknown, Name: name}, nil
	}
}

func decodeError(data json.RawMessage) (Event, error) {
	var body struct {
		Message string `json:"message"`
	}
	if isNull(data) {
		return Event{Kind: KindError, Name: EventError, Message: defaultErrorMessage}, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		// Some servers send the message as a bare JSON string.
		var msg string
		if json.Unmarshal(data, &msg) != nil {
			return Event{}, fmt.Errorf("stream: %w: error event: %v", domain.ErrMalformedEvent, err)
		}
		body.Message = msg
	}
	if strings.TrimSpace(body.Message) == "" {
		body.Message = defaultErrorMessage
	}
	return Event{Kind: KindError, Name: EventError, Message: body.Message}, nil
}

func decodeQuote(data json.RawMessage) (Event, error) {
	if isNull(data) {
		return Event{}, fmt.Errorf("stream: %w: empty quote event", domain.ErrMalformedEvent)
	}

	var env quoteEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("stream: %w: quote envelope: %v", domain.ErrMalformedEvent, err)
	}

	inner := env.Quote
	if isNull(inner) {
		inner = data // flat shape
	}
	var q wireQuote
	if err := json.Unmarshal(inner, &q); err != nil {
		return Event{}, fmt.Errorf("stream: %w: quote body: %v", domain.ErrMalformedEvent, err)
	}

	provider := strings.TrimSpace(env.Aggregator)
	if provider == "" {
		provider = strings.TrimSpace(q.Aggregator)
	}
	if provider == "" {
		return Event{}, fmt.Errorf("stream: %w: quote without aggregator", domain.ErrMalformedEvent)
	}

	quote := q.Quote
	quote.EmittedAt = parseTimestamp(env.Timestamp)

	return Event{
		Kind:     KindQuote,
		Name:     EventQuote,
		Provider: domain.ProviderID(provider),
		Quote:    quote,
	}, nil
}

// parseTimestamp accepts integer or fractional numbers, quoted or not. The
// value is informational, so anything unparsable becomes zero.
func parseTimestamp(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func isNull(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}
