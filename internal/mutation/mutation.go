// Package mutation applies client-side changes optimistically: the visible
// state changes immediately, the authoritative call follows, and the state is
// restored on failure and refetched once the call settles.
package mutation

import (
	"context"
	"log"
)

// Mutation is one optimistic change expressed as a command object.
type Mutation interface {
	// Snapshot captures the client-visible state Rollback restores.
	Snapshot()
	// Apply makes the speculative change visible.
	Apply() error
	// Commit issues the authoritative call.
	Commit(ctx context.Context) error
	// Rollback restores the snapshot verbatim.
	Rollback()
}

// Reconciler owns the refetch lifecycle of the collections a mutation touches.
type Reconciler interface {
	CancelRefetch(key string)
	Invalidate(ctx context.Context, key string) error
}

type Coordinator struct {
	reconciler Reconciler
	logger     *log.Logger
}

func NewCoordinator(r Reconciler, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{reconciler: r, logger: logger}
}

// Execute runs m against the collection registered under key. A failed
// Commit is returned to the caller after the snapshot is restored; it is not
// retried. The collection is refetched whether or not the commit succeeded.
func (c *Coordinator) Execute(ctx context.Context, key string, m Mutation) (err error) {
	if c.reconciler != nil {
		c.reconciler.CancelRefetch(key)
	}
	m.Snapshot()
	defer func() {
		if err != nil {
			m.Rollback()
		}
		c.settle(ctx, key)
	}()
	if err = m.Apply(); err != nil {
		return err
	}
	return m.Commit(ctx)
}

func (c *Coordinator) settle(ctx context.Context, key string) {
	if c.reconciler == nil {
		return
	}
	if err := c.reconciler.Invalidate(context.WithoutCancel(ctx), key); err != nil {
		c.logger.Printf("mutation: refetch %s: %v", key, err)
	}
}
