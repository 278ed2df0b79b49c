package services

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore backs the service tests. It mirrors the guarantees the SQL store
// gives: unique (user, cycle), draft-only response writes, dense ordering.
type memStore struct {
	mu           sync.Mutex
	cycles       map[string]*Cycle
	questions    map[string]*Question
	phases       map[string]*Phase
	apps         map[string]*Application
	responses    map[string]*Response // key appID/questionID
	users        map[string]*User
	audit        []AuditEntry
	orderApplied int
	// orderErr fails every positioned insert before anything is written.
	orderErr error
}

func newMemStore() *memStore {
	return &memStore{
		cycles:    map[string]*Cycle{},
		questions: map[string]*Question{},
		phases:    map[string]*Phase{},
		apps:      map[string]*Application{},
		responses: map[string]*Response{},
		users:     map[string]*User{},
	}
}

func (s *memStore) InsertCycle(_ context.Context, c *Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cycles[c.ID] = &cp
	return nil
}

func (s *memStore) GetCycle(_ context.Context, id string) (*Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cycles[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) ListCycles(_ context.Context) ([]*Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Cycle, 0, len(s.cycles))
	for _, c := range s.cycles {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) InsertQuestion(_ context.Context, q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.questions[q.ID] = &cp
	return nil
}

func (s *memStore) InsertQuestionAt(ctx context.Context, q *Question, order []string) error {
	if s.orderErr != nil {
		return s.orderErr
	}
	if err := s.InsertQuestion(ctx, q); err != nil {
		return err
	}
	return s.ApplyQuestionOrder(ctx, q.CycleID, order)
}

func (s *memStore) UpdateQuestion(_ context.Context, q *Question) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return false, nil
	}
	cp := *q
	s.questions[q.ID] = &cp
	return true, nil
}

func (s *memStore) DeleteQuestion(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return false, nil
	}
	delete(s.questions, id)
	for k, r := range s.responses {
		if r.QuestionID == id {
			delete(s.responses, k)
		}
	}
	return true, nil
}

func (s *memStore) GetQuestion(_ context.Context, id string) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.questions[id]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) ListQuestionsByCycle(_ context.Context, cycleID string) ([]*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Question
	for _, q := range s.questions {
		if q.CycleID == cycleID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) ApplyQuestionOrder(_ context.Context, cycleID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderApplied++
	for i, id := range ids {
		if q, ok := s.questions[id]; ok && q.CycleID == cycleID {
			q.Order = i
		}
	}
	return nil
}

func (s *memStore) InsertPhase(_ context.Context, p *Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.phases[p.ID] = &cp
	return nil
}

func (s *memStore) InsertPhaseAt(ctx context.Context, p *Phase, order []string) error {
	if s.orderErr != nil {
		return s.orderErr
	}
	if err := s.InsertPhase(ctx, p); err != nil {
		return err
	}
	return s.ApplyPhaseOrder(ctx, p.CycleID, order)
}

func (s *memStore) UpdatePhase(_ context.Context, p *Phase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.phases[p.ID]; !ok {
		return false, nil
	}
	cp := *p
	s.phases[p.ID] = &cp
	return true, nil
}

func (s *memStore) DeletePhase(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.phases[id]; !ok {
		return false, nil
	}
	delete(s.phases, id)
	for _, a := range s.apps {
		if a.PhaseID == id {
			a.PhaseID = ""
		}
	}
	return true, nil
}

func (s *memStore) GetPhase(_ context.Context, id string) (*Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.phases[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) ListPhasesByCycle(_ context.Context, cycleID string) ([]*Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Phase
	for _, p := range s.phases {
		if p.CycleID == cycleID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *memStore) ApplyPhaseOrder(_ context.Context, cycleID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderApplied++
	for i, id := range ids {
		if p, ok := s.phases[id]; ok && p.CycleID == cycleID {
			p.Order = i
		}
	}
	return nil
}

func (s *memStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) InsertApplication(_ context.Context, a *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.apps {
		if existing.UserID == a.UserID && existing.CycleID == a.CycleID {
			return NewDuplicateError("application already exists for this cycle")
		}
	}
	cp := *a
	s.apps[a.ID] = &cp
	return nil
}

func (s *memStore) GetApplication(_ context.Context, id string) (*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.apps[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) GetApplicationByUser(_ context.Context, userID, cycleID string) (*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.apps {
		if a.UserID == userID && a.CycleID == cycleID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListApplications(_ context.Context, f ApplicationFilter) ([]*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Application
	for _, a := range s.apps {
		if a.CycleID != f.CycleID {
			continue
		}
		if f.PhaseID != "" && a.PhaseID != f.PhaseID {
			continue
		}
		if f.Unphased && a.PhaseID != "" {
			continue
		}
		if f.SubmittedOnly && !a.Submitted {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) MarkSubmitted(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.Submitted {
		return false, nil
	}
	a.Submitted = true
	a.SubmittedAt = &at
	return true, nil
}

func (s *memStore) SetApplicationPhase(_ context.Context, id, phaseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return false, nil
	}
	a.PhaseID = phaseID
	return true, nil
}

func (s *memStore) GetResponse(_ context.Context, appID, questionID string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.responses[appID+"/"+questionID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) UpsertDraftResponse(_ context.Context, r *Response) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[r.ApplicationID]
	if !ok || a.Submitted {
		return false, nil
	}
	key := r.ApplicationID + "/" + r.QuestionID
	if old, ok := s.responses[key]; ok {
		r.ID = old.ID
	}
	cp := *r
	s.responses[key] = &cp
	return true, nil
}

func (s *memStore) ListResponses(_ context.Context, appID string) ([]*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Response
	for _, r := range s.responses {
		if r.ApplicationID == appID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *memStore) AddAudit(_ context.Context, e AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.audit))
	for i, e := range s.audit {
		out[i] = e.Action
	}
	return out
}

func intPtr(v int) *int { return &v }
