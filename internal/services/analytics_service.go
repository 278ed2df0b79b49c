package services

import (
	"context"
	"sort"
)

type AnalyticsStore interface {
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	ListQuestionsByCycle(ctx context.Context, cycleID string) ([]*Question, error)
	ListPhasesByCycle(ctx context.Context, cycleID string) ([]*Phase, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*Application, error)
	ListResponses(ctx context.Context, applicationID string) ([]*Response, error)
}

type AnalyticsService struct {
	store AnalyticsStore
}

type AnalyticsPhase struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name"`
	Count       int    `json:"count"`
}

// AnalyticsQuestion counts non-empty answers across all applications.
type AnalyticsQuestion struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Required    bool   `json:"required"`
	Answered    int    `json:"answered"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AnalyticsSummary struct {
	CycleID      string                `json:"cycle_id"`
	Applications int                   `json:"applications"`
	Submitted    int                   `json:"submitted"`
	Drafts       int                   `json:"drafts"`
	Phases       []AnalyticsPhase      `json:"phases"`
	Questions    []AnalyticsQuestion   `json:"questions"`
	Timeseries   []AnalyticsTimeseries `json:"timeseries"`
}

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// Summary aggregates a cycle's applications for the reviewer dashboard. The
// first phase entry is always the unphased bucket.
func (s *AnalyticsService) Summary(ctx context.Context, p Principal, cycleID string) (*AnalyticsSummary, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	cycle, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, NewNotFoundError("cycle not found")
	}
	questions, err := s.store.ListQuestionsByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	phases, err := s.store.ListPhasesByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	apps, err := s.store.ListApplications(ctx, ApplicationFilter{CycleID: cycle.ID})
	if err != nil {
		return nil, err
	}

	out := &AnalyticsSummary{CycleID: cycle.ID, Applications: len(apps)}
	out.Phases = buildPhaseCounts(phases, apps)
	answered := map[string]int{}
	countsByDay := map[string]int{}
	for _, a := range apps {
		if a.Submitted {
			out.Submitted++
			if a.SubmittedAt != nil {
				countsByDay[a.SubmittedAt.UTC().Format("2006-01-02")]++
			}
		} else {
			out.Drafts++
		}
		rs, err := s.store.ListResponses(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			if r.Value != "" {
				answered[r.QuestionID]++
			}
		}
	}
	out.Questions = make([]AnalyticsQuestion, 0, len(questions))
	for _, q := range questions {
		out.Questions = append(out.Questions, AnalyticsQuestion{
			ID:          q.ID,
			DisplayName: q.DisplayName,
			Required:    q.Required,
			Answered:    answered[q.ID],
		})
	}
	out.Timeseries = buildTimeseries(countsByDay)
	return out, nil
}

func buildPhaseCounts(phases []*Phase, apps []*Application) []AnalyticsPhase {
	index := make(map[string]int, len(phases))
	out := make([]AnalyticsPhase, 0, len(phases)+1)
	out = append(out, AnalyticsPhase{DisplayName: "Unphased"})
	for _, ph := range phases {
		index[ph.ID] = len(out)
		out = append(out, AnalyticsPhase{ID: ph.ID, DisplayName: ph.DisplayName})
	}
	for _, a := range apps {
		if i, ok := index[a.PhaseID]; ok {
			out[i].Count++
		} else {
			out[0].Count++
		}
	}
	return out
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
