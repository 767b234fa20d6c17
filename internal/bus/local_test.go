package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

func recv(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case b := <-ch:
		return string(b)
	case <-time.After(time.Second):
		t.Fatal("no payload")
		return ""
	}
}

func TestLocalPublishSubscribe(t *testing.T) {
	b := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exact, err := b.Subscribe(ctx, "ch:quotes")
	require.NoError(t, err)
	pattern, err := b.Subscribe(ctx, "ch:*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ch:quotes", []byte("v1")))
	require.NoError(t, b.Publish(ctx, "ch:status", []byte("s1")))

	assert.Equal(t, "v1", recv(t, exact))
	assert.Equal(t, "v1", recv(t, pattern))
	assert.Equal(t, "s1", recv(t, pattern))
	assert.Empty(t, exact)
}

func TestLocalSlowSubscriberDropsOldest(t *testing.T) {
	b := NewLocal()
	ch, err := b.Subscribe(context.Background(), "ch:quotes")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, b.Publish(context.Background(), "ch:quotes", []byte{byte(i)}))
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, []byte{5}, <-ch)
}

func TestLocalCancelClosesChannel(t *testing.T) {
	b := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "ch:quotes")
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestLocalClose(t *testing.T) {
	b := NewLocal()
	ch, err := b.Subscribe(context.Background(), "ch:quotes")
	require.NoError(t, err)

	b.Close()
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(context.Background(), "ch:quotes", nil), domain.ErrStreamClosed)
	_, err = b.Subscribe(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrStreamClosed)
}
