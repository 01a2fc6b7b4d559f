package services

import (
	"sync"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// Registry maps collection names to per-model realtime configuration. It is
// populated once at process startup by the CRUD layer and read-only at
// runtime from the pipeline's perspective; reads after startup are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]domain.RegistryEntry
	order   []string
}

var _ ports.ModelRegistry = (*Registry)(nil)

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]domain.RegistryEntry),
	}
}

// Register stores an entry keyed by its collection name. Registering the
// same collection twice replaces the previous entry (last writer wins);
// registration order is preserved for diagnostics.
func (r *Registry) Register(entry domain.RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.Collection]; !exists {
		r.order = append(r.order, entry.Collection)
	}
	r.entries[entry.Collection] = entry
}

// Lookup returns the entry for a collection name.
func (r *Registry) Lookup(collection string) (domain.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[collection]
	return entry, ok
}

// All returns every entry in registration order.
func (r *Registry) All() []domain.RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RegistryEntry, 0, len(r.order))
	for _, collection := range r.order {
		out = append(out, r.entries[collection])
	}
	return out
}

// Clear removes every entry. Test use only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]domain.RegistryEntry)
	r.order = nil
}
