package services

import (
	"context"
	"strings"
)

// OrderedItem is anything kept in a dense, reorderable sequence.
type OrderedItem interface {
	OrderKey() string
}

func indexOf[T OrderedItem](seq []T, id string) int {
	for i, it := range seq {
		if it.OrderKey() == id {
			return i
		}
	}
	return -1
}

// Reorder computes the sequence after dragging movedID onto targetID.
// Adjacent items are swapped; otherwise the moved item is removed and
// reinserted at the target's index. The input slice is not modified.
func Reorder[T OrderedItem](seq []T, movedID, targetID string) ([]T, error) {
	activeIdx := indexOf(seq, movedID)
	if activeIdx < 0 {
		return nil, NewInvalidError("unknown item " + movedID)
	}
	overIdx := indexOf(seq, targetID)
	if overIdx < 0 {
		return nil, NewInvalidError("unknown item " + targetID)
	}
	out := make([]T, len(seq))
	copy(out, seq)
	switch d := activeIdx - overIdx; {
	case d == 0:
		return out, nil
	case d == 1 || d == -1:
		out[activeIdx], out[overIdx] = out[overIdx], out[activeIdx]
		return out, nil
	}
	moved := out[activeIdx]
	out = append(out[:activeIdx], out[activeIdx+1:]...)
	out = append(out[:overIdx], append([]T{moved}, out[overIdx:]...)...)
	return out, nil
}

// OrderKeys returns the keys of seq in sequence order.
func OrderKeys[T OrderedItem](seq []T) []string {
	ids := make([]string, len(seq))
	for i, it := range seq {
		ids[i] = it.OrderKey()
	}
	return ids
}

// ArrangeByKeys returns seq rearranged to follow ids. ids must be a
// permutation of the keys in seq.
func ArrangeByKeys[T OrderedItem](seq []T, ids []string) ([]T, error) {
	if len(ids) != len(seq) {
		return nil, NewInvalidError("order must list every item exactly once")
	}
	byKey := make(map[string]T, len(seq))
	for _, it := range seq {
		byKey[it.OrderKey()] = it
	}
	out := make([]T, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		it, ok := byKey[id]
		if !ok {
			return nil, NewInvalidError("unknown item " + id)
		}
		if seen[id] {
			return nil, NewInvalidError("duplicate item " + id)
		}
		seen[id] = true
		out = append(out, it)
	}
	return out, nil
}

// orderedRepository binds the reorder algorithm to one collection's storage.
// Questions and phases differ only in the functions plugged in here.
type orderedRepository[T OrderedItem] struct {
	list     func(ctx context.Context, cycleID string) ([]T, error)
	apply    func(ctx context.Context, cycleID string, ids []string) error
	getOrder func(item T) int
	// setOrder mirrors the persisted position onto the returned items.
	setOrder func(item T, order int)
}

// trailing is the order a newly appended item receives. Gaps left by deletes
// are tolerated until the next reorder.
func (r orderedRepository[T]) trailing(items []T) int {
	next := 0
	for _, it := range items {
		if o := r.getOrder(it) + 1; o > next {
			next = o
		}
	}
	return next
}

func (r orderedRepository[T]) persist(ctx context.Context, cycleID string, seq []T) ([]T, error) {
	if err := r.apply(ctx, cycleID, OrderKeys(seq)); err != nil {
		return nil, err
	}
	for i, it := range seq {
		r.setOrder(it, i)
	}
	return seq, nil
}

func (r orderedRepository[T]) move(ctx context.Context, cycleID, movedID, targetID string) ([]T, error) {
	current, err := r.list(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	next, err := Reorder(current, movedID, targetID)
	if err != nil {
		return nil, err
	}
	return r.persist(ctx, cycleID, next)
}

func (r orderedRepository[T]) reorder(ctx context.Context, cycleID string, ids []string) ([]T, error) {
	current, err := r.list(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	next, err := ArrangeByKeys(current, ids)
	if err != nil {
		return nil, err
	}
	return r.persist(ctx, cycleID, next)
}

// placeAt returns current with item inserted at pos (clamped) and every
// item's order set to its new index.
func (r orderedRepository[T]) placeAt(current []T, item T, pos int) []T {
	if idx := indexOf(current, item.OrderKey()); idx >= 0 {
		current = append(current[:idx:idx], current[idx+1:]...)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(current) {
		pos = len(current)
	}
	next := make([]T, 0, len(current)+1)
	next = append(next, current[:pos]...)
	next = append(next, item)
	next = append(next, current[pos:]...)
	for i, it := range next {
		r.setOrder(it, i)
	}
	return next
}
