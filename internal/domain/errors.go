package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidParams  = errors.New("invalid stream parameters")
	ErrStreamClosed   = errors.New("quote stream closed")
	ErrMalformedEvent = errors.New("malformed stream event")
	ErrServerReported = errors.New("quote stream error")
)

// ErrUnavailable is returned when an optional backend (audit store, cache) is
// not configured.
var ErrUnavailable = errors.New("backend not configured")
