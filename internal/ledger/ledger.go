// Package ledger holds the freshest-wins view of every provider's latest
// quote. Writes are accepted only when strictly newer than the stored entry,
// and stale entries are removed by a periodic sweep.
package ledger

import (
	"sync"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// Ledger maps provider identity to its most recent quote. All methods are
// safe for concurrent use; the event path and the sweeper share one mutex.
type Ledger struct {
	mu      sync.Mutex
	entries map[domain.ProviderID]domain.LedgerEntry
	order   []domain.ProviderID // first-insertion order
	seq     uint64

	onChange func()
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithOnChange registers a hook invoked after every mutation that changed
// the ledger. It runs outside the ledger lock but may run while the caller
// holds its own locks, so it must not block or call back into the writer.
func WithOnChange(fn func()) Option {
	return func(l *Ledger) { l.onChange = fn }
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{entries: make(map[domain.ProviderID]domain.LedgerEntry)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Upsert stores quote for provider if there is no entry yet or arrivalMs is
// strictly greater than the stored arrival time. It returns the stored entry
// and whether the write was applied. Stale writes are silently discarded.
func (l *Ledger) Upsert(provider domain.ProviderID, quote domain.Quote, arrivalMs int64) (domain.LedgerEntry, bool) {
	l.mu.Lock()
	cur, ok := l.entries[provider]
	if ok && arrivalMs <= cur.ArrivalMs {
		l.mu.Unlock()
		return cur, false
	}
	if !ok {
		l.order = append(l.order, provider)
	}
	l.seq++
	entry := domain.LedgerEntry{
		Provider:  provider,
		Quote:     quote,
		ArrivalMs: arrivalMs,
		Seq:       l.seq,
	}
	l.entries[provider] = entry
	l.mu.Unlock()

	l.changed()
	return entry, true
}

// EvictOlderThan removes every entry whose arrival time is before cutoffMs
// and returns how many were removed.
func (l *Ledger) EvictOlderThan(cutoffMs int64) int {
	l.mu.Lock()
	removed := 0
	kept := l.order[:0]
	for _, p := range l.order {
		if l.entries[p].ArrivalMs < cutoffMs {
			delete(l.entries, p)
			removed++
			continue
		}
		kept = append(kept, p)
	}
	l.order = kept
	l.mu.Unlock()

	if removed > 0 {
		l.changed()
	}
	return removed
}

// Clear removes all entries.
func (l *Ledger) Clear() {
	l.mu.Lock()
	had := len(l.entries) > 0
	l.entries = make(map[domain.ProviderID]domain.LedgerEntry)
	l.order = nil
	l.mu.Unlock()

	if had {
		l.changed()
	}
}

// Snapshot returns a copy of all entries in first-insertion order. The
// returned slice is owned by the caller.
func (l *Ledger) Snapshot() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.LedgerEntry, 0, len(l.order))
	for _, p := range l.order {
		out = append(out, l.entries[p])
	}
	return out
}

// Get returns the entry for provider.
func (l *Ledger) Get(provider domain.ProviderID) (domain.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[provider]
	return e, ok
}

// Len returns the number of providers currently held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}
