package services

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type QuestionStore interface {
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	InsertQuestion(ctx context.Context, q *Question) error
	// InsertQuestionAt inserts q and renumbers its cycle to order in one step.
	InsertQuestionAt(ctx context.Context, q *Question, order []string) error
	UpdateQuestion(ctx context.Context, q *Question) (bool, error)
	DeleteQuestion(ctx context.Context, id string) (bool, error)
	GetQuestion(ctx context.Context, id string) (*Question, error)
	ListQuestionsByCycle(ctx context.Context, cycleID string) ([]*Question, error)
	ApplyQuestionOrder(ctx context.Context, cycleID string, ids []string) error
	AddAudit(ctx context.Context, entry AuditEntry)
}

type QuestionService struct {
	store   QuestionStore
	ordered orderedRepository[*Question]
	now     func() time.Time
	idGen   func() string
}

func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{
		store: store,
		ordered: orderedRepository[*Question]{
			list:     store.ListQuestionsByCycle,
			apply:    store.ApplyQuestionOrder,
			getOrder: func(q *Question) int { return q.Order },
			setOrder: func(q *Question, order int) { q.Order = order },
		},
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(10) },
	}
}

func (s *QuestionService) ListByCycle(ctx context.Context, cycleID string) ([]*Question, error) {
	if strings.TrimSpace(cycleID) == "" {
		return nil, NewInvalidError("cycle_id required")
	}
	return s.store.ListQuestionsByCycle(ctx, cycleID)
}

// Create adds a question to its cycle. A nil position appends it after the
// current last question; otherwise it is inserted there and the cycle is renumbered.
func (s *QuestionService) Create(ctx context.Context, p Principal, q *Question, position *int) (*Question, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if q == nil {
		return nil, NewInvalidError("question required")
	}
	if err := ValidateQuestionSchema(q); err != nil {
		return nil, err
	}
	cycle, err := s.store.GetCycle(ctx, q.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, NewInvalidReferenceError("cycle not found")
	}
	if q.ID == "" {
		q.ID = s.idGen()
	}
	existing, err := s.store.ListQuestionsByCycle(ctx, q.CycleID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		q.Order = s.ordered.trailing(existing)
		if err := s.store.InsertQuestion(ctx, q); err != nil {
			return nil, err
		}
		return q, nil
	}
	seq := s.ordered.placeAt(existing, q, *position)
	if err := s.store.InsertQuestionAt(ctx, q, OrderKeys(seq)); err != nil {
		return nil, err
	}
	return q, nil
}

// Update replaces the editable fields of a question. Cycle and order are kept.
func (s *QuestionService) Update(ctx context.Context, p Principal, q *Question) (*Question, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if q == nil || strings.TrimSpace(q.ID) == "" {
		return nil, NewInvalidError("question id required")
	}
	old, err := s.store.GetQuestion(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, NewNotFoundError("question not found")
	}
	updated := *q
	updated.CycleID = old.CycleID
	updated.Order = old.Order
	if err := ValidateQuestionSchema(&updated); err != nil {
		return nil, err
	}
	ok, err := s.store.UpdateQuestion(ctx, &updated)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFoundError("question not found")
	}
	return &updated, nil
}

func (s *QuestionService) Delete(ctx context.Context, p Principal, id string) error {
	if !p.IsReviewer() {
		return NewForbiddenError("reviewer role required")
	}
	ok, err := s.store.DeleteQuestion(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("question not found")
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "delete_question", Target: id})
	return nil
}

// Reorder persists orderedIDs, which must list every question of the cycle once.
func (s *QuestionService) Reorder(ctx context.Context, p Principal, cycleID string, orderedIDs []string) ([]*Question, error) {
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
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "reorder_questions", Target: cycleID, Note: strconv.Itoa(len(out))})
	return out, nil
}

// Move applies a drag of movedID onto targetID and returns the new sequence.
func (s *QuestionService) Move(ctx context.Context, p Principal, cycleID, movedID, targetID string) ([]*Question, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	out, err := s.ordered.move(ctx, cycleID, movedID, targetID)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: p.ID, Action: "move_question", Target: movedID, Note: targetID})
	return out, nil
}

// FieldViews describes the cycle's questions for a form renderer.
func (s *QuestionService) FieldViews(ctx context.Context, cycleID string) ([]FieldView, error) {
	qs, err := s.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return BuildFieldViews(qs)
}
