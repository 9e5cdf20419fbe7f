package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry maps provider identifiers to their adapter variant. New
// providers are added by implementing ProviderAdapter and registering it,
// never by branching on type.
type ProviderRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{adapters: make(map[string]ProviderAdapter)}
}

func (r *ProviderRegistry) Register(adapter ProviderAdapter) error {
	if adapter == nil {
		return fmt.Errorf("core: provider adapter is nil")
	}
	id := strings.TrimSpace(adapter.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.adapters[id] = adapter
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (ProviderAdapter, bool) {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[id]
	r.mu.RUnlock()
	return adapter, ok
}

func (r *ProviderRegistry) List() []ProviderAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	adapters := make([]ProviderAdapter, 0, len(keys))
	for _, id := range keys {
		adapters = append(adapters, r.adapters[id])
	}
	return adapters
}
