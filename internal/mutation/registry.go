package mutation

import (
	"context"
	"errors"
	"sync"
)

type refetcher interface {
	CancelRefetch()
	Refetch(ctx context.Context) error
}

// Registry maps collection keys to collections and implements Reconciler.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]refetcher
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]refetcher{}}
}

// Register adds c under key, replacing any previous entry.
func Register[T any](r *Registry, key string, c *Collection[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = c
}

func (r *Registry) lookup(key string) refetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

func (r *Registry) CancelRefetch(key string) {
	if e := r.lookup(key); e != nil {
		e.CancelRefetch()
	}
}

// Invalidate refetches the collection under key. A refetch superseded by a
// newer write is not an error.
func (r *Registry) Invalidate(ctx context.Context, key string) error {
	e := r.lookup(key)
	if e == nil {
		return nil
	}
	if err := e.Refetch(ctx); err != nil && !errors.Is(err, ErrStale) {
		return err
	}
	return nil
}
