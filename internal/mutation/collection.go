package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStale reports a refetch whose result was dropped because the collection
// changed or the refetch was cancelled while it was in flight.
var ErrStale = errors.New("mutation: stale refetch")

// Collection is a client-visible list backed by a fetch function.
type Collection[T any] struct {
	mu     sync.Mutex
	items  []T
	loaded bool
	gen    uint64
	fetch  func(ctx context.Context) ([]T, error)
	cancel context.CancelFunc
}

func NewCollection[T any](fetch func(ctx context.Context) ([]T, error)) *Collection[T] {
	return &Collection[T]{fetch: fetch}
}

// Items returns a copy of the current visible list.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *Collection[T]) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Set replaces the visible list. Any refetch in flight is invalidated.
func (c *Collection[T]) Set(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
	c.loaded = true
	c.gen++
}

// CancelRefetch aborts the refetch in flight, if any, so its result cannot
// overwrite a speculative change.
func (c *Collection[T]) CancelRefetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

// Refetch loads the authoritative list. The result is discarded with ErrStale
// if the collection was written or cancelled in the meantime.
func (c *Collection[T]) Refetch(ctx context.Context) error {
	if c.fetch == nil {
		return nil
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	items, err := c.fetch(ctx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrStale
	}
	c.cancel = nil
	if err != nil {
		return fmt.Errorf("refetch: %w", err)
	}
	c.items = items
	c.loaded = true
	return nil
}

// Command is the generic Mutation over a Collection: Update computes the
// speculative list from the current one and Send performs the server call.
type Command[T any] struct {
	Target   *Collection[T]
	Update   func(items []T) ([]T, error)
	Send     func(ctx context.Context) error
	snapshot []T
	taken    bool
}

func (m *Command[T]) Snapshot() {
	m.snapshot = m.Target.Items()
	m.taken = true
}

func (m *Command[T]) Apply() error {
	if m.Update == nil {
		return nil
	}
	next, err := m.Update(m.Target.Items())
	if err != nil {
		return err
	}
	m.Target.Set(next)
	return nil
}

func (m *Command[T]) Commit(ctx context.Context) error {
	if m.Send == nil {
		return nil
	}
	return m.Send(ctx)
}

func (m *Command[T]) Rollback() {
	if m.taken {
		m.Target.Set(m.snapshot)
	}
}
