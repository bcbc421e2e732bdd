// Package persistence defines the storage collaborator the hub writes
// routed records to, and a Fanout that writes to several backends at once.
//
// Backends live under internal/infrastructure (redisdb, database, influxdb,
// clickhousedb). Each satisfies Store; those that also keep actuator
// responses satisfy ResponseStore.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// ErrNoStores is returned by a Fanout with no backends.
var ErrNoStores = errors.New("persistence: no stores configured")

// Store persists one telemetry record received on a resource.
type Store interface {
	Store(ctx context.Context, kind resource.Kind, qos int, rec data.TelemetryRecord) error
}

// ResponseStore persists actuator responses.
type ResponseStore interface {
	StoreResponse(ctx context.Context, kind resource.Kind, rec data.CommandRecord) error
}

type namedStore struct {
	name  string
	store Store
}

// Fanout writes every record to all registered stores. A failing store
// does not prevent writes to the others; their errors are joined.
//
// Thread Safety: safe for concurrent use. Stores are registered before use.
type Fanout struct {
	mu     sync.RWMutex
	stores []namedStore
}

// NewFanout creates an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a named store.
func (f *Fanout) Add(name string, s Store) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores = append(f.stores, namedStore{name: name, store: s})
}

// Len returns the number of registered stores.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.stores)
}

// Names returns the registered store names in registration order.
func (f *Fanout) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.stores))
	for i, s := range f.stores {
		names[i] = s.name
	}
	return names
}

// Store implements Store.
func (f *Fanout) Store(ctx context.Context, kind resource.Kind, qos int, rec data.TelemetryRecord) error {
	f.mu.RLock()
	stores := f.stores
	f.mu.RUnlock()

	if len(stores) == 0 {
		return ErrNoStores
	}

	var errs []error
	for _, s := range stores {
		if err := s.store.Store(ctx, kind, qos, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// StoreResponse implements ResponseStore, writing to the stores that
// support responses.
func (f *Fanout) StoreResponse(ctx context.Context, kind resource.Kind, rec data.CommandRecord) error {
	f.mu.RLock()
	stores := f.stores
	f.mu.RUnlock()

	var errs []error
	for _, s := range stores {
		rs, ok := s.store.(ResponseStore)
		if !ok {
			continue
		}
		if err := rs.StoreResponse(ctx, kind, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
