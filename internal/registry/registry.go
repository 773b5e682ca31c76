// Package registry maps pool identifiers to their aggregation state. Lookup
// is case-insensitive; the original casing is preserved for display. Each
// entry carries its own lock so pools never contend with each other.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/noma-protocol/pricefeed/pkg/models"
)

// Entry owns one pool's PriceSeries. All ingestion-side mutation happens
// under Update; queries read a deep copy under the read lock.
type Entry struct {
	DisplayID string

	mu     sync.RWMutex
	series *models.PriceSeries
}

// Update runs fn with exclusive access to the series.
func (e *Entry) Update(fn func(*models.PriceSeries)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.series)
}

// Snapshot returns a consistent deep copy of the series.
func (e *Entry) Snapshot() *models.PriceSeries {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.series.Clone()
}

// Registry is the set of tracked pools.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Normalize lowercases a pool id for lookup.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// GetOrCreate returns the entry for id, allocating an empty series on first
// reference. Safe to call concurrently with ingestion on the same id.
func (r *Registry) GetOrCreate(id string) *Entry {
	key := Normalize(id)

	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.entries[key]; ok {
		return entry
	}
	entry = &Entry{DisplayID: strings.TrimSpace(id), series: models.NewPriceSeries()}
	r.entries[key] = entry
	return entry
}

// Get returns the entry for id, or nil when unknown.
func (r *Registry) Get(id string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[Normalize(id)]
}

// Put installs a series for id, replacing any existing entry. Used when
// restoring from a snapshot.
func (r *Registry) Put(id string, series *models.PriceSeries) *Entry {
	if series == nil {
		series = models.NewPriceSeries()
	}
	if series.Candles == nil {
		series.Candles = make(map[string][]models.Candle, len(models.Intervals))
	}
	entry := &Entry{DisplayID: strings.TrimSpace(id), series: series}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[Normalize(id)] = entry
	return entry
}

// IDs returns the display ids of all registered pools, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		ids = append(ids, entry.DisplayID)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Each visits every entry. The visitor must not call back into the registry.
func (r *Registry) Each(fn func(key string, entry *Entry)) {
	r.mu.RLock()
	entries := make(map[string]*Entry, len(r.entries))
	for key, entry := range r.entries {
		entries[key] = entry
	}
	r.mu.RUnlock()

	for key, entry := range entries {
		fn(key, entry)
	}
}
