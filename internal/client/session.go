package client

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync/atomic"

	"github.com/soaringjerry/intake/internal/mutation"
	"github.com/soaringjerry/intake/internal/services"
)

const (
	KeyQuestions    = "questions"
	KeyPhases       = "phases"
	KeyApplications = "applications"
)

// Session holds the client-visible state of one cycle. Every edit goes
// through the coordinator: visible at once, rolled back on failure and
// reconciled with the server afterwards.
type Session struct {
	client       *Client
	cycleID      string
	registry     *mutation.Registry
	coord        *mutation.Coordinator
	Questions    *mutation.Collection[*services.Question]
	Phases       *mutation.Collection[*services.Phase]
	Applications *mutation.Collection[*services.Application]
	pending      atomic.Int64
}

func NewSession(c *Client, cycleID string, logger *log.Logger) *Session {
	s := &Session{client: c, cycleID: cycleID, registry: mutation.NewRegistry()}
	s.Questions = mutation.NewCollection(func(ctx context.Context) ([]*services.Question, error) {
		return c.ListQuestions(ctx, cycleID)
	})
	s.Phases = mutation.NewCollection(func(ctx context.Context) ([]*services.Phase, error) {
		return c.ListPhases(ctx, cycleID)
	})
	s.Applications = mutation.NewCollection(func(ctx context.Context) ([]*services.Application, error) {
		return c.ListApplications(ctx, cycleID)
	})
	mutation.Register(s.registry, KeyQuestions, s.Questions)
	mutation.Register(s.registry, KeyPhases, s.Phases)
	mutation.Register(s.registry, KeyApplications, s.Applications)
	s.coord = mutation.NewCoordinator(s.registry, logger)
	return s
}

func (s *Session) CycleID() string { return s.cycleID }

// Load fetches the questions and phases, and the board when withBoard is set.
func (s *Session) Load(ctx context.Context, withBoard bool) error {
	keys := []string{KeyQuestions, KeyPhases}
	if withBoard {
		keys = append(keys, KeyApplications)
	}
	var errs []error
	for _, k := range keys {
		if err := s.registry.Invalidate(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// renumbered copies seq with dense orders so snapshots never share the
// mutated values.
func renumbered[T any](seq []*T, set func(*T, int)) []*T {
	out := make([]*T, len(seq))
	for i, it := range seq {
		cp := *it
		set(&cp, i)
		out[i] = &cp
	}
	return out
}

// placed copies seq with item inserted at pos (appended when pos is nil).
func placed[T any](seq []*T, item *T, pos *int) []*T {
	at := len(seq)
	if pos != nil && *pos >= 0 && *pos < at {
		at = *pos
	}
	out := make([]*T, 0, len(seq)+1)
	out = append(out, seq[:at]...)
	out = append(out, item)
	return append(out, seq[at:]...)
}

// replaced copies seq with the item whose key matches swapped for next.
func replaced[T services.OrderedItem](seq []T, next T) ([]T, error) {
	out := make([]T, len(seq))
	found := false
	for i, it := range seq {
		if it.OrderKey() == next.OrderKey() {
			out[i] = next
			found = true
			continue
		}
		out[i] = it
	}
	if !found {
		return nil, services.NewNotFoundError(next.OrderKey() + " is not loaded")
	}
	return out, nil
}

func without[T services.OrderedItem](seq []T, key string) []T {
	out := make([]T, 0, len(seq))
	for _, it := range seq {
		if it.OrderKey() != key {
			out = append(out, it)
		}
	}
	return out
}

// pendingID names an item that exists only speculatively until the refetch.
func (s *Session) pendingID() string {
	return "pending-" + strconv.FormatInt(s.pending.Add(1), 10)
}

// CreateQuestion shows q at position immediately and returns the stored question.
func (s *Session) CreateQuestion(ctx context.Context, q *services.Question, position *int) (*services.Question, error) {
	var created *services.Question
	err := s.coord.Execute(ctx, KeyQuestions, &mutation.Command[*services.Question]{
		Target: s.Questions,
		Update: func(items []*services.Question) ([]*services.Question, error) {
			draft := *q
			draft.ID = s.pendingID()
			draft.CycleID = s.cycleID
			return renumbered(placed(items, &draft, position), func(q *services.Question, i int) { q.Order = i }), nil
		},
		Send: func(ctx context.Context) error {
			var err error
			created, err = s.client.CreateQuestion(ctx, s.cycleID, q, position)
			return err
		},
	})
	return created, err
}

// UpdateQuestion replaces the question's fields in place; its position is kept.
func (s *Session) UpdateQuestion(ctx context.Context, q *services.Question) error {
	return s.coord.Execute(ctx, KeyQuestions, &mutation.Command[*services.Question]{
		Target: s.Questions,
		Update: func(items []*services.Question) ([]*services.Question, error) {
			next := *q
			for _, it := range items {
				if it.ID == q.ID {
					next.CycleID, next.Order = it.CycleID, it.Order
				}
			}
			return replaced(items, &next)
		},
		Send: func(ctx context.Context) error {
			_, err := s.client.UpdateQuestion(ctx, q)
			return err
		},
	})
}

func (s *Session) MoveQuestion(ctx context.Context, movedID, targetID string) error {
	return s.coord.Execute(ctx, KeyQuestions, &mutation.Command[*services.Question]{
		Target: s.Questions,
		Update: func(items []*services.Question) ([]*services.Question, error) {
			next, err := services.Reorder(items, movedID, targetID)
			if err != nil {
				return nil, err
			}
			return renumbered(next, func(q *services.Question, i int) { q.Order = i }), nil
		},
		Send: func(ctx context.Context) error { return s.client.MoveQuestion(ctx, s.cycleID, movedID, targetID) },
	})
}

func (s *Session) ReorderQuestions(ctx context.Context, ids []string) error {
	return s.coord.Execute(ctx, KeyQuestions, &mutation.Command[*services.Question]{
		Target: s.Questions,
		Update: func(items []*services.Question) ([]*services.Question, error) {
			next, err := services.ArrangeByKeys(items, ids)
			if err != nil {
				return nil, err
			}
			return renumbered(next, func(q *services.Question, i int) { q.Order = i }), nil
		},
		Send: func(ctx context.Context) error { return s.client.ReorderQuestions(ctx, s.cycleID, ids) },
	})
}

func (s *Session) DeleteQuestion(ctx context.Context, questionID string) error {
	return s.coord.Execute(ctx, KeyQuestions, &mutation.Command[*services.Question]{
		Target: s.Questions,
		Update: func(items []*services.Question) ([]*services.Question, error) {
			return without(items, questionID), nil
		},
		Send: func(ctx context.Context) error { return s.client.DeleteQuestion(ctx, questionID) },
	})
}

func (s *Session) MovePhase(ctx context.Context, movedID, targetID string) error {
	return s.coord.Execute(ctx, KeyPhases, &mutation.Command[*services.Phase]{
		Target: s.Phases,
		Update: func(items []*services.Phase) ([]*services.Phase, error) {
			next, err := services.Reorder(items, movedID, targetID)
			if err != nil {
				return nil, err
			}
			return renumbered(next, func(p *services.Phase, i int) { p.Order = i }), nil
		},
		Send: func(ctx context.Context) error { return s.client.MovePhase(ctx, s.cycleID, movedID, targetID) },
	})
}

func (s *Session) CreatePhase(ctx context.Context, ph *services.Phase, position *int) (*services.Phase, error) {
	var created *services.Phase
	err := s.coord.Execute(ctx, KeyPhases, &mutation.Command[*services.Phase]{
		Target: s.Phases,
		Update: func(items []*services.Phase) ([]*services.Phase, error) {
			draft := *ph
			draft.ID = s.pendingID()
			draft.CycleID = s.cycleID
			return renumbered(placed(items, &draft, position), func(p *services.Phase, i int) { p.Order = i }), nil
		},
		Send: func(ctx context.Context) error {
			var err error
			created, err = s.client.CreatePhase(ctx, s.cycleID, ph, position)
			return err
		},
	})
	return created, err
}

// UpdatePhase renames a phase in place.
func (s *Session) UpdatePhase(ctx context.Context, ph *services.Phase) error {
	return s.coord.Execute(ctx, KeyPhases, &mutation.Command[*services.Phase]{
		Target: s.Phases,
		Update: func(items []*services.Phase) ([]*services.Phase, error) {
			next := *ph
			for _, it := range items {
				if it.ID == ph.ID {
					next.CycleID, next.Order = it.CycleID, it.Order
				}
			}
			return replaced(items, &next)
		},
		Send: func(ctx context.Context) error {
			_, err := s.client.UpdatePhase(ctx, ph)
			return err
		},
	})
}

// DeletePhase removes the phase. Cards in it become unphased, so the board
// is refetched as well once the phase list settles.
func (s *Session) DeletePhase(ctx context.Context, phaseID string) error {
	err := s.coord.Execute(ctx, KeyPhases, &mutation.Command[*services.Phase]{
		Target: s.Phases,
		Update: func(items []*services.Phase) ([]*services.Phase, error) {
			return renumbered(without(items, phaseID), func(p *services.Phase, i int) { p.Order = i }), nil
		},
		Send: func(ctx context.Context) error { return s.client.DeletePhase(ctx, phaseID) },
	})
	if err == nil && s.Applications.Loaded() {
		if rerr := s.registry.Invalidate(ctx, KeyApplications); rerr != nil {
			return rerr
		}
	}
	return err
}

func (s *Session) ReorderPhases(ctx context.Context, ids []string) error {
	return s.coord.Execute(ctx, KeyPhases, &mutation.Command[*services.Phase]{
		Target: s.Phases,
		Update: func(items []*services.Phase) ([]*services.Phase, error) {
			next, err := services.ArrangeByKeys(items, ids)
			if err != nil {
				return nil, err
			}
			return renumbered(next, func(p *services.Phase, i int) { p.Order = i }), nil
		},
		Send: func(ctx context.Context) error { return s.client.ReorderPhases(ctx, s.cycleID, ids) },
	})
}

// AssignPhase moves an application card on the board.
func (s *Session) AssignPhase(ctx context.Context, applicationID, phaseID string) error {
	return s.coord.Execute(ctx, KeyApplications, &mutation.Command[*services.Application]{
		Target: s.Applications,
		Update: func(items []*services.Application) ([]*services.Application, error) {
			out := make([]*services.Application, len(items))
			found := false
			for i, a := range items {
				if a.ID == applicationID {
					cp := *a
					cp.PhaseID = phaseID
					out[i] = &cp
					found = true
					continue
				}
				out[i] = a
			}
			if !found {
				return nil, services.NewNotFoundError("application not on the board")
			}
			return out, nil
		},
		Send: func(ctx context.Context) error { return s.client.AssignPhase(ctx, applicationID, phaseID) },
	})
}
