package core

import (
	"fmt"
	"sort"
	"sync"
)

type StoreClientRegistry struct {
	mu        sync.RWMutex
	factories map[Store]StoreClientFactory
}

func NewStoreClientRegistry() *StoreClientRegistry {
	return &StoreClientRegistry{factories: make(map[Store]StoreClientFactory)}
}

func (r *StoreClientRegistry) Register(store Store, factory StoreClientFactory) error {
	if factory == nil {
		return fmt.Errorf("core: store client factory is nil")
	}
	if err := store.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[store]; exists {
		return fmt.Errorf("core: store already registered: %s", store)
	}
	r.factories[store] = factory
	return nil
}

func (r *StoreClientRegistry) Get(store Store) (StoreClientFactory, bool) {
	r.mu.RLock()
	factory, ok := r.factories[store]
	r.mu.RUnlock()
	return factory, ok
}

func (r *StoreClientRegistry) Stores() []Store {
	r.mu.RLock()
	stores := make([]Store, 0, len(r.factories))
	for store := range r.factories {
		stores = append(stores, store)
	}
	r.mu.RUnlock()
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	return stores
}

var _ Registry = (*StoreClientRegistry)(nil)
