// Package directory joins provider identities to display metadata fetched
// once from the aggregator directory endpoint.
package directory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// Fetcher loads the provider directory. metastream.DirectoryClient
// implements it.
type Fetcher interface {
	FetchAggregators(ctx context.Context) ([]domain.ProviderMeta, error)
}

// Directory is a read-mostly map of provider metadata. A zero Directory
// answers every lookup with the fallback.
type Directory struct {
	mu     sync.RWMutex
	metas  map[domain.ProviderID]domain.ProviderMeta
	order  []domain.ProviderID
	loaded bool
	logger *slog.Logger
}

// New creates an empty Directory.
func New(logger *slog.Logger) *Directory {
	return &Directory{
		metas:  make(map[domain.ProviderID]domain.ProviderMeta),
		logger: logger.With(slog.String("component", "directory")),
	}
}

// Load fetches the directory and replaces the current contents. A failed
// fetch leaves the directory empty and is logged, never returned: lookups
// then fall back to raw provider identities.
func (d *Directory) Load(ctx context.Context, f Fetcher) {
	metas, err := f.FetchAggregators(ctx)
	if err != nil {
		d.logger.Warn("aggregator directory unavailable, using raw identities",
			slog.String("error", err.Error()),
		)
		metas = nil
	}
	d.Set(metas)
	if err == nil {
		d.logger.Info("aggregator directory loaded", slog.Int("count", len(metas)))
	}
}

// Set replaces the directory contents. Entries without an id are skipped;
// a repeated id keeps the first entry.
func (d *Directory) Set(metas []domain.ProviderMeta) {
	m := make(map[domain.ProviderID]domain.ProviderMeta, len(metas))
	order := make([]domain.ProviderID, 0, len(metas))
	for _, meta := range metas {
		if meta.ID == "" {
			continue
		}
		if _, dup := m[meta.ID]; dup {
			continue
		}
		m[meta.ID] = meta
		order = append(order, meta.ID)
	}

	d.mu.Lock()
	d.metas = m
	d.order = order
	d.loaded = true
	d.mu.Unlock()
}

// Lookup returns metadata for id. Unknown ids, and known ids with an empty
// display name, fall back to the id itself with no logo.
func (d *Directory) Lookup(id domain.ProviderID) domain.ProviderMeta {
	d.mu.RLock()
	meta, ok := d.metas[id]
	d.mu.RUnlock()

	if !ok {
		return domain.ProviderMeta{ID: id, DisplayName: string(id)}
	}
	if meta.DisplayName == "" {
		meta.DisplayName = string(id)
	}
	return meta
}

// All returns the directory in fetch order.
func (d *Directory) All() []domain.ProviderMeta {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.ProviderMeta, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.metas[id])
	}
	return out
}

// Loaded reports whether Load or Set has run.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}
