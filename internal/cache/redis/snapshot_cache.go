package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache with plain string keys that
// expire. A replica that stops publishing leaves no stale snapshot behind
// once the TTL elapses.
type SnapshotCache struct {
	client *Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{client: c}
}

// SnapshotKey returns the cache key for a stream key.
func SnapshotKey(streamKey string) string {
	return "quotes:" + streamKey
}

// SetSnapshot stores payload under the stream's key. A zero ttl keeps it
// until overwritten.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, streamKey string, payload []byte, ttl time.Duration) error {
	key := sc.client.Key(SnapshotKey(streamKey))
	if err := sc.client.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", streamKey, err)
	}
	return nil
}

// GetSnapshot returns the stored payload, or domain.ErrNotFound.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, streamKey string) ([]byte, error) {
	key := sc.client.Key(SnapshotKey(streamKey))
	b, err := sc.client.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get snapshot %s: %w", streamKey, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get snapshot %s: %w", streamKey, err)
	}
	return b, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
