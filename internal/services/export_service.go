package services

import (
	"context"
	"fmt"
	"time"
)

type ExportStore interface {
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	ListQuestionsByCycle(ctx context.Context, cycleID string) ([]*Question, error)
	ListPhasesByCycle(ctx context.Context, cycleID string) ([]*Phase, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*Application, error)
	ListResponses(ctx context.Context, applicationID string) ([]*Response, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

type ExportParams struct {
	CycleID       string
	Format        string
	SubmittedOnly bool
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

func (s *ExportService) ExportCSV(ctx context.Context, p Principal, params ExportParams) (*ExportResult, error) {
	if !p.IsReviewer() {
		return nil, NewForbiddenError("reviewer role required")
	}
	if params.CycleID == "" {
		return nil, NewInvalidError("cycle_id required")
	}
	format := params.Format
	if format == "" {
		format = "wide"
	}
	cycle, err := s.store.GetCycle(ctx, params.CycleID)
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
	if format == "questions" {
		b, err := ExportQuestionsCSV(questions)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: cycle.ID + "-questions.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	}

	apps, err := s.store.ListApplications(ctx, ApplicationFilter{CycleID: cycle.ID, SubmittedOnly: params.SubmittedOnly})
	if err != nil {
		return nil, err
	}
	emails := map[string]string{}
	email := func(userID string) (string, error) {
		if e, ok := emails[userID]; ok {
			return e, nil
		}
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return "", err
		}
		if u != nil {
			emails[userID] = u.Email
		}
		return emails[userID], nil
	}
	byID := make(map[string]*Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	switch format {
	case "long":
		var rows []LongRow
		for _, a := range apps {
			e, err := email(a.UserID)
			if err != nil {
				return nil, err
			}
			rs, err := s.store.ListResponses(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			for _, r := range rs {
				v := r.Value
				if q := byID[r.QuestionID]; q != nil {
					v = displayValue(q, v)
				}
				rows = append(rows, LongRow{ApplicationID: a.ID, Email: e, QuestionID: r.QuestionID, Value: v, UpdatedAt: r.UpdatedAt.Format(time.RFC3339)})
			}
		}
		b, err := ExportLongCSV(rows)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: cycle.ID + "-long.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	case "wide":
		phases, err := s.store.ListPhasesByCycle(ctx, cycle.ID)
		if err != nil {
			return nil, err
		}
		phaseNames := make(map[string]string, len(phases))
		for _, ph := range phases {
			phaseNames[ph.ID] = ph.DisplayName
		}
		headers := questionHeaders(questions)
		rows := make([]WideRow, 0, len(apps))
		for _, a := range apps {
			e, err := email(a.UserID)
			if err != nil {
				return nil, err
			}
			rs, err := s.store.ListResponses(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			row := WideRow{ApplicationID: a.ID, Email: e, Phase: phaseNames[a.PhaseID], Submitted: a.Submitted, Answers: map[string]string{}}
			if a.SubmittedAt != nil {
				row.SubmittedAt = a.SubmittedAt.Format(time.RFC3339)
			}
			for _, r := range rs {
				q := byID[r.QuestionID]
				if q == nil {
					continue
				}
				row.Answers[headers[q.ID]] = displayValue(q, r.Value)
			}
			rows = append(rows, row)
		}
		ordered := make([]string, 0, len(questions))
		for _, q := range questions {
			ordered = append(ordered, headers[q.ID])
		}
		b, err := ExportWideCSV(ordered, rows)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: cycle.ID + "-wide.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
	default:
		return nil, NewInvalidError("unsupported format")
	}
}

// questionHeaders maps question ids to unique column names based on display names.
func questionHeaders(questions []*Question) map[string]string {
	out := make(map[string]string, len(questions))
	used := map[string]bool{}
	for _, q := range questions {
		base := q.DisplayName
		if base == "" {
			base = q.ID
		}
		name := base
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("%s (%d)", base, i)
		}
		used[name] = true
		out[q.ID] = name
	}
	return out
}
