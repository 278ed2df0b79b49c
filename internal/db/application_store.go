package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/soaringjerry/intake/internal/services"
)

const applicationColumns = `id, user_id, cycle_id, submitted, phase_id, created_at, submitted_at`

func (s *SQLiteStore) scanApplication(scan func(dest ...any) error) (*services.Application, error) {
	var a services.Application
	var submitted int64
	var phase, submittedAt sql.NullString
	var created string
	if err := scan(&a.ID, &a.UserID, &a.CycleID, &submitted, &phase, &created, &submittedAt); err != nil {
		return nil, err
	}
	a.Submitted = submitted != 0
	a.PhaseID = phase.String
	a.CreatedAt = s.parseTime("applications.created_at", created)
	if submittedAt.Valid {
		t := s.parseTime("applications.submitted_at", submittedAt.String)
		a.SubmittedAt = &t
	}
	return &a, nil
}

func (s *SQLiteStore) InsertApplication(ctx context.Context, a *services.Application) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO applications (`+applicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.CycleID, boolToInt64(a.Submitted), toNullString(a.PhaseID), formatTime(a.CreatedAt), toNullTime(a.SubmittedAt))
	switch {
	case isUniqueViolation(err):
		return services.NewDuplicateError("application already exists for this cycle")
	case isForeignKeyViolation(err):
		return services.NewInvalidReferenceError("unknown user or cycle")
	}
	return err
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*services.Application, error) {
	a, err := s.scanApplication(s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) GetApplicationByUser(ctx context.Context, userID, cycleID string) (*services.Application, error) {
	a, err := s.scanApplication(s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE user_id = ? AND cycle_id = ?`, userID, cycleID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) ListApplications(ctx context.Context, f services.ApplicationFilter) ([]*services.Application, error) {
	where := []string{"cycle_id = ?"}
	args := []any{f.CycleID}
	switch {
	case f.PhaseID != "":
		where = append(where, "phase_id = ?")
		args = append(args, f.PhaseID)
	case f.Unphased:
		where = append(where, "phase_id IS NULL")
	}
	if f.SubmittedOnly {
		where = append(where, "submitted = 1")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListApplications: rows.Close", cerr)
		}
	}()
	out := []*services.Application{}
	for rows.Next() {
		a, err := s.scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkSubmitted only flips drafts, so concurrent submits cannot both succeed.
func (s *SQLiteStore) MarkSubmitted(ctx context.Context, applicationID string, at time.Time) (bool, error) {
	return affected(s.db.ExecContext(ctx, `UPDATE applications SET submitted = 1, submitted_at = ? WHERE id = ? AND submitted = 0`,
		formatTime(at), applicationID))
}

func (s *SQLiteStore) SetApplicationPhase(ctx context.Context, applicationID, phaseID string) (bool, error) {
	ok, err := affected(s.db.ExecContext(ctx, `UPDATE applications SET phase_id = ? WHERE id = ?`, toNullString(phaseID), applicationID))
	if isForeignKeyViolation(err) {
		return false, services.NewInvalidReferenceError("phase not found")
	}
	return ok, err
}

// --- Responses ---

func (s *SQLiteStore) GetResponse(ctx context.Context, applicationID, questionID string) (*services.Response, error) {
	var r services.Response
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT id, question_id, application_id, value, updated_at FROM responses
      WHERE application_id = ? AND question_id = ?`, applicationID, questionID).
		Scan(&r.ID, &r.QuestionID, &r.ApplicationID, &r.Value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = s.parseTime("responses.updated_at", updated)
	return &r, nil
}

// UpsertDraftResponse writes the answer only while the application is still a
// draft. On conflict the existing row keeps its id and r.ID is updated to match.
func (s *SQLiteStore) UpsertDraftResponse(ctx context.Context, r *services.Response) (bool, error) {
	ok, err := affected(s.db.ExecContext(ctx, `INSERT INTO responses (id, question_id, application_id, value, updated_at)
      SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM applications WHERE id = ? AND submitted = 0)
      ON CONFLICT(question_id, application_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		r.ID, r.QuestionID, r.ApplicationID, r.Value, formatTime(r.UpdatedAt), r.ApplicationID))
	if isForeignKeyViolation(err) {
		return false, services.NewInvalidReferenceError("unknown question or application")
	}
	if err != nil || !ok {
		return ok, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM responses WHERE application_id = ? AND question_id = ?`,
		r.ApplicationID, r.QuestionID).Scan(&r.ID); err != nil {
		s.logErr("UpsertDraftResponse: reload id", err)
	}
	return true, nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, applicationID string) ([]*services.Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.question_id, r.application_id, r.value, r.updated_at
      FROM responses r JOIN questions q ON q.id = r.question_id
      WHERE r.application_id = ? ORDER BY q.position ASC, q.id ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListResponses: rows.Close", cerr)
		}
	}()
	out := []*services.Response{}
	for rows.Next() {
		var r services.Response
		var updated string
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.ApplicationID, &r.Value, &updated); err != nil {
			return nil, err
		}
		r.UpdatedAt = s.parseTime("responses.updated_at", updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}
