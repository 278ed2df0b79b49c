package services

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CycleStore interface {
	InsertCycle(ctx context.Context, c *Cycle) error
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	ListCycles(ctx context.Context) ([]*Cycle, error)
}

type CycleService struct {
	store  CycleStore
	logger *log.Logger
	now    func() time.Time
	idGen  func() string
}

func NewCycleService(store CycleStore, logger *log.Logger) *CycleService {
	if logger == nil {
		logger = log.Default()
	}
	return &CycleService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  func() string { return shortID(10) },
	}
}

func (s *CycleService) Create(ctx context.Context, p Principal, displayName string, start, end time.Time) (*Cycle, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, NewInvalidError("display_name required")
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, NewInvalidError("start_time must be before end_time")
	}
	c := &Cycle{ID: s.idGen(), DisplayName: displayName, StartTime: start.UTC(), EndTime: end.UTC()}
	if err := s.store.InsertCycle(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CycleService) List(ctx context.Context) ([]*Cycle, error) {
	return s.store.ListCycles(ctx)
}

func (s *CycleService) Get(ctx context.Context, id string) (*Cycle, error) {
	c, err := s.store.GetCycle(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, NewNotFoundError("cycle not found")
	}
	return c, nil
}

// Active returns the cycle open right now.
func (s *CycleService) Active(ctx context.Context) (*Cycle, error) {
	return activeCycle(ctx, s.store, s.now(), s.logger)
}

// activeCycle picks the cycle whose window contains now. At most one cycle is
// expected to be active; if several are, the latest start wins.
func activeCycle(ctx context.Context, store interface {
	ListCycles(ctx context.Context) ([]*Cycle, error)
}, now time.Time, logger *log.Logger) (*Cycle, error) {
	cycles, err := store.ListCycles(ctx)
	if err != nil {
		return nil, err
	}
	active := ActiveCycles(cycles, now)
	if len(active) == 0 {
		return nil, NewNotFoundError("no active cycle")
	}
	if len(active) > 1 && logger != nil {
		logger.Printf("warning: %d cycles active at %s, using %s", len(active), now.Format(time.RFC3339), active[0].ID)
	}
	return active[0], nil
}

// ActiveCycles returns the cycles open at now, latest start first.
func ActiveCycles(cycles []*Cycle, now time.Time) []*Cycle {
	out := make([]*Cycle, 0, 1)
	for _, c := range cycles {
		if c != nil && c.IsActive(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// CheckSingleActive reports a conflict error when more than one cycle is open at now.
func CheckSingleActive(cycles []*Cycle, now time.Time) error {
	active := ActiveCycles(cycles, now)
	if len(active) <= 1 {
		return nil
	}
	ids := make([]string, len(active))
	for i, c := range active {
		ids[i] = c.ID
	}
	return NewStateError("multiple active cycles: " + strings.Join(ids, ", "))
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
