package services

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type PhaseStore interface {
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	InsertPhase(ctx context.Context, p *Phase) error
	InsertPhaseAt(ctx context.Context, p *Phase, order []string) error
	UpdatePhase(ctx context.Context, p *Phase) (bool, error)
	// DeletePhase removes the phase and leaves its applications unphased.
	DeletePhase(ctx context.Context, id string) (bool, error)
	GetPhase(ctx context.Context, id string) (*Phase, error)
	ListPhasesByCycle(ctx context.Context, cycleID string) ([]*Phase, error)
	ApplyPhaseOrder(ctx context.Context, cycleID string, ids []string) error
	AddAudit(ctx context.Context, entry AuditEntry)
}

type PhaseService struct {
	store   PhaseStore
	ordered orderedRepository[*Phase]
	now     func() time.Time
	idGen   func() string
}

func NewPhaseService(store PhaseStore) *PhaseService {
	return &PhaseService{
		store: store,
		ordered: orderedRepository[*Phase]{
			list:     store.ListPhasesByCycle,
			apply:    store.ApplyPhaseOrder,
			getOrder: func(p *Phase) int { return p.Order },
			setOrder: func(p *Phase, order int) { p.Order = order },
		},
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(10) },
	}
}

func (s *PhaseService) ListByCycle(ctx context.Context, cycleID string) ([]*Phase, error) {
	if strings.TrimSpace(cycleID) == "" {
		return nil, NewInvalidError("cycle_id required")
	}
	return s.store.ListPhasesByCycle(ctx, cycleID)
}

func (s *PhaseService) Create(ctx context.Context, p Principal, ph *Phase, position *int) (*Phase, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if ph == nil || strings.TrimSpace(ph.DisplayName) == "" {
		return nil, NewInvalidError("display_name required")
	}
	cycle, err := s.store.GetCycle(ctx, ph.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, NewInvalidReferenceError("cycle not found")
	}
	if ph.ID == "" {
		ph.ID = s.idGen()
	}
	existing, err := s.store.ListPhasesByCycle(ctx, ph.CycleID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		ph.Order = s.ordered.trailing(existing)
		if err := s.store.InsertPhase(ctx, ph); err != nil {
			return nil, err
		}
		return ph, nil
	}
	seq := s.ordered.placeAt(existing, ph, *position)
	if err := s.store.InsertPhaseAt(ctx, ph, OrderKeys(seq)); err != nil {
		return nil, err
	}
	return ph, nil
}

// Update renames a phase. Cycle and order are kept.
func (s *PhaseService) Update(ctx context.Context, p Principal, ph *Phase) (*Phase, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if ph == nil || strings.TrimSpace(ph.ID) == "" {
		return nil, NewInvalidError("phase id required")
	}
	if strings.TrimSpace(ph.DisplayName) == "" {
		return nil, NewInvalidError("display_name required")
	}
	old, err := s.store.GetPhase(ctx, ph.ID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NewNotFoundError("phase not found")
	}
	updated := *old
	updated.DisplayName = strings.TrimSpace(ph.DisplayName)
	ok, err := s.store.UpdatePhase(ctx, &updated)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFoundError("phase not found")
	}
	return &updated, nil
}

func (s *PhaseService) Delete(ctx context.Context, p Principal, id string) error {
	if !p.IsReviewer() {
		return NewForbiddenError("reviewer role required")
	}
	ok, err := s.store.DeletePhase(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("phase not found")
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "delete_phase", Target: id})
	return nil
}

func (s *PhaseService) Reorder(ctx context.Context, p Principal, cycleID string, orderedIDs []string) ([]*Phase, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if len(orderedIDs) == 0 {
		return nil, NewInvalidError("order required")
	}
	out, err := s.ordered.reorder(ctx, cycleID, orderedIDs)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "reorder_phases", Target: cycleID, Note: strconv.Itoa(len(out))})
	return out, nil
}

func (s *PhaseService) Move(ctx context.Context, p Principal, cycleID, movedID, targetID string) ([]*Phase, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	out, err := s.ordered.move(ctx, cycleID, movedID, targetID)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "move_phase", Target: movedID, Note: targetID})
	return out, nil
}
