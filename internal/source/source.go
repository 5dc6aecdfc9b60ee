// Package source defines the adapter boundary of the acquisition pipeline:
// one adapter per external source family, each returning raw rows or a
// first-class unavailable outcome. Adapters know nothing about fallback
// order; the resolver owns that.
package source

import (
	"context"
	"sync"

	"github.com/painel-gv/indicadores/internal/config"
)

// Request carries everything an adapter needs to fetch one indicator.
type Request struct {
	IndicatorKey     string
	MunicipalityCode string
	// Entry holds the adapter-specific parameters declared for this chain
	// position (SIDRA table, file glob, FTP path, declared unit).
	Entry config.ChainEntry
}

// Row is one raw observation as the source shipped it. All fields are
// unparsed strings; coercion and validation belong to the normalizer.
type Row struct {
	Year  string
	Month string // empty for annual series
	Value string
	Unit  string // empty when the source does not state one
}

// Payload is a non-empty fetch result. Source is the adapter's provenance
// identity and becomes the stored record's source tag.
type Payload struct {
	Source string
	Rows   []Row
}

// Adapter fetches raw data for one indicator from one source family.
//
// Outcomes: (payload, nil) on success; (nil, resilience.ErrUnavailable) when
// the source has nothing for this indicator right now; a TransientError for
// retryable failures; a PermanentError for malformed or mismatched data.
// A missing local file is unavailable, never an error to paper over.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Payload, error)
}

// Registry maps chain adapter identities to Adapter implementations.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under the given chain identity
// (config.AdapterSIDRA etc.).
func (r *Registry) Register(id string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[id] = a
}

// Get returns the adapter for a chain identity, or nil if not registered.
func (r *Registry) Get(id string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// List returns all registered chain identities.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
