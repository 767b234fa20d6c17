package domain

import (
	"context"
	"time"
)

// SignalBus provides fire-and-forget pub/sub between the quote publisher and
// push surfaces.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SnapshotCache keeps the most recent serialized projection per stream so
// other processes can read it without subscribing.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, streamKey string, payload []byte, ttl time.Duration) error
	GetSnapshot(ctx context.Context, streamKey string) ([]byte, error)
}

// RateLimiter admits at most limit requests per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Bus channels carrying projection and session updates.
const (
	ChannelQuotes = "ch:quotes"
	ChannelStatus = "ch:status"
)
