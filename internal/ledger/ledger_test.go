package ledger

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

func q(out string) domain.Quote {
	return domain.Quote{Status: "Success", AmountOut: out}
}

func TestUpsertRejectsStaleWrite(t *testing.T) {
	l := New()

	_, ok := l.Upsert("kyber", q("A"), 100)
	require.True(t, ok)

	_, ok = l.Upsert("kyber", q("B"), 50)
	assert.False(t, ok)

	e, found := l.Get("kyber")
	require.True(t, found)
	assert.Equal(t, "A", e.Quote.AmountOut)
	assert.EqualValues(t, 100, e.ArrivalMs)
}

func TestUpsertEqualTimestampDiscarded(t *testing.T) {
	l := New()
	l.Upsert("odos", q("A"), 100)
	_, ok := l.Upsert("odos", q("B"), 100)
	assert.False(t, ok)

	e, _ := l.Get("odos")
	assert.Equal(t, "A", e.Quote.AmountOut)
}

func TestUpsertOrderIndependentFinalState(t *testing.T) {
	writes := []struct {
		ts  int64
		out string
	}{{10, "a"}, {40, "d"}, {20, "b"}, {30, "c"}, {5, "z"}}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		l := New()
		perm := rng.Perm(len(writes))
		for _, i := range perm {
			l.Upsert("p", q(writes[i].out), writes[i].ts)
		}
		e, ok := l.Get("p")
		require.True(t, ok)
		assert.EqualValues(t, 40, e.ArrivalMs, "perm %v", perm)
		assert.Equal(t, "d", e.Quote.AmountOut)
		assert.Equal(t, 1, l.Len())
	}
}

func TestEvictOlderThan(t *testing.T) {
	l := New()
	l.Upsert("a", q("1"), 100)
	l.Upsert("b", q("2"), 200)
	l.Upsert("c", q("3"), 300)

	removed := l.EvictOlderThan(200)
	assert.Equal(t, 1, removed)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.GreaterOrEqual(t, e.ArrivalMs, int64(200))
	}
	assert.Equal(t, domain.ProviderID("b"), snap[0].Provider)
	assert.Equal(t, domain.ProviderID("c"), snap[1].Provider)

	assert.Zero(t, l.EvictOlderThan(0))
}

func TestSnapshotKeepsInsertionOrderAcrossUpdates(t *testing.T) {
	l := New()
	l.Upsert("a", q("1"), 1)
	l.Upsert("b", q("2"), 2)
	l.Upsert("a", q("3"), 3)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, domain.ProviderID("a"), snap[0].Provider)
	assert.Equal(t, "3", snap[0].Quote.AmountOut)
	assert.Greater(t, snap[0].Seq, snap[1].Seq)
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New()
	l.Upsert("a", q("1"), 1)

	snap := l.Snapshot()
	snap[0].Quote.AmountOut = "mutated"

	e, _ := l.Get("a")
	assert.Equal(t, "1", e.Quote.AmountOut)
}

func TestClearAndOnChange(t *testing.T) {
	var changes int
	l := New(WithOnChange(func() { changes++ }))

	l.Upsert("a", q("1"), 10)
	l.Upsert("a", q("0"), 5) // stale, no change
	l.EvictOlderThan(1)      // nothing removed
	assert.Equal(t, 1, changes)

	l.Clear()
	assert.Equal(t, 2, changes)
	assert.Zero(t, l.Len())

	l.Clear()
	assert.Equal(t, 2, changes, "clearing an empty ledger is not a change")
}

func TestConcurrentUpsertAndEvict(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				l.Upsert(domain.ProviderID(rune('a'+w)), q("1"), int64(i))
				if i%50 == 0 {
					l.EvictOlderThan(int64(i - 100))
					_ = l.Snapshot()
				}
			}
		}(w)
	}
	wg.Wait()

	for _, e := range l.Snapshot() {
		assert.EqualValues(t, 499, e.ArrivalMs)
	}
}

func TestSweeperUsesExpiryWindow(t *testing.T) {
	now := time.UnixMilli(100_000)
	l := New()
	l.Upsert("old", q("1"), now.Add(-20*time.Second).UnixMilli())
	l.Upsert("edge", q("2"), now.Add(-15*time.Second).UnixMilli())
	l.Upsert("fresh", q("3"), now.Add(-time.Second).UnixMilli())

	var swept []int
	s := NewSweeper(l, SweeperConfig{
		Now:     func() time.Time { return now },
		OnSweep: func(n int) { swept = append(swept, n) },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, 1, s.Sweep())
	_, ok := l.Get("edge")
	assert.True(t, ok, "entry exactly at the cutoff is kept")
	_, ok = l.Get("old")
	assert.False(t, ok)
	assert.Equal(t, []int{1}, swept)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	l := New()
	l.Upsert("a", q("1"), 0)

	s := NewSweeper(l, SweeperConfig{Interval: 5 * time.Millisecond, Expiry: time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
