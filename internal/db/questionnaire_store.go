package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/soaringjerry/intake/internal/services"
)

// applyOrder rewrites the position column of every row of table in cycleID so
// that ids[i] lands at position i, in one statement. ids must list every row
// of the cycle.
func (s *SQLiteStore) applyOrder(ctx context.Context, table, cycleID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return applyOrderTx(ctx, tx, table, cycleID, ids)
	})
}

// insertOrdered runs insert and then renumbers the cycle, committing both or neither.
func (s *SQLiteStore) insertOrdered(ctx context.Context, table, cycleID string, ids []string, insert func(tx *sql.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insert(tx); err != nil {
			return err
		}
		return applyOrderTx(ctx, tx, table, cycleID, ids)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func applyOrderTx(ctx context.Context, tx *sql.Tx, table, cycleID string, ids []string) error {
	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE cycle_id = ?`, cycleID).Scan(&total); err != nil {
		return err
	}
	if total != len(ids) {
		return services.NewInvalidError("order must list every item exactly once")
	}

	var b strings.Builder
	args := make([]any, 0, 2*len(ids)+1+len(ids))
	b.WriteString(`UPDATE ` + table + ` SET position = CASE id`)
	for i, id := range ids {
		b.WriteString(` WHEN ? THEN ?`)
		args = append(args, id, i)
	}
	b.WriteString(` END WHERE cycle_id = ? AND id IN (`)
	args = append(args, cycleID)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(`, `)
		}
		b.WriteString(`?`)
		args = append(args, id)
	}
	b.WriteString(`)`)

	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return services.NewInvalidError("order references items outside the cycle")
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- Questions ---

const questionColumns = `id, cycle_id, display_name, description, type, required, position, placeholder, options, min_length, max_length`

func (s *SQLiteStore) scanQuestion(scan func(dest ...any) error) (*services.Question, error) {
	var q services.Question
	var desc, placeholder, options sql.NullString
	var typ string
	var required int64
	var minLen, maxLen sql.NullInt64
	if err := scan(&q.ID, &q.CycleID, &q.DisplayName, &desc, &typ, &required, &q.Order, &placeholder, &options, &minLen, &maxLen); err != nil {
		return nil, err
	}
	q.Description = desc.String
	q.Type = services.QuestionType(typ)
	q.Required = required != 0
	q.Placeholder = placeholder.String
	q.Options = s.decodeOptions(options)
	q.MinLength = fromNullInt(minLen)
	q.MaxLength = fromNullInt(maxLen)
	return &q, nil
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q *services.Question) error {
	return insertQuestion(ctx, s.db, q)
}

func (s *SQLiteStore) InsertQuestionAt(ctx context.Context, q *services.Question, order []string) error {
	return s.insertOrdered(ctx, "questions", q.CycleID, order, func(tx *sql.Tx) error {
		return insertQuestion(ctx, tx, q)
	})
}

func insertQuestion(ctx context.Context, ex execer, q *services.Question) error {
	opts, err := encodeOptions(q.Options)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO questions (`+questionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.CycleID, q.DisplayName, toNullString(q.Description), string(q.Type), boolToInt64(q.Required), q.Order,
		toNullString(q.Placeholder), opts, toNullInt(q.MinLength), toNullInt(q.MaxLength))
	switch {
	case isUniqueViolation(err):
		return services.NewDuplicateError("question exists")
	case isForeignKeyViolation(err):
		return services.NewInvalidReferenceError("cycle not found")
	}
	return err
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *services.Question) (bool, error) {
	opts, err := encodeOptions(q.Options)
	if err != nil {
		return false, err
	}
	return affected(s.db.ExecContext(ctx, `UPDATE questions SET display_name = ?, description = ?, type = ?, required = ?,
      placeholder = ?, options = ?, min_length = ?, max_length = ? WHERE id = ?`,
		q.DisplayName, toNullString(q.Description), string(q.Type), boolToInt64(q.Required),
		toNullString(q.Placeholder), opts, toNullInt(q.MinLength), toNullInt(q.MaxLength), q.ID))
}

// DeleteQuestion removes the question together with every answer to it.
func (s *SQLiteStore) DeleteQuestion(ctx context.Context, id string) (ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM responses WHERE question_id = ?`, id); err != nil {
		return false, err
	}
	ok, err = affected(tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id))
	if err != nil {
		return false, err
	}
	return ok, tx.Commit()
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (*services.Question, error) {
	q, err := s.scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (s *SQLiteStore) ListQuestionsByCycle(ctx context.Context, cycleID string) ([]*services.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE cycle_id = ? ORDER BY position ASC, id ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListQuestionsByCycle: rows.Close", cerr)
		}
	}()
	out := []*services.Question{}
	for rows.Next() {
		q, err := s.scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ApplyQuestionOrder(ctx context.Context, cycleID string, ids []string) error {
	return s.applyOrder(ctx, "questions", cycleID, ids)
}

// --- Phases ---

func (s *SQLiteStore) InsertPhase(ctx context.Context, p *services.Phase) error {
	return insertPhase(ctx, s.db, p)
}

func (s *SQLiteStore) InsertPhaseAt(ctx context.Context, p *services.Phase, order []string) error {
	return s.insertOrdered(ctx, "phases", p.CycleID, order, func(tx *sql.Tx) error {
		return insertPhase(ctx, tx, p)
	})
}

func insertPhase(ctx context.Context, ex execer, p *services.Phase) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO phases (id, cycle_id, display_name, position) VALUES (?, ?, ?, ?)`,
		p.ID, p.CycleID, p.DisplayName, p.Order)
	switch {
	case isUniqueViolation(err):
		return services.NewDuplicateError("phase exists")
	case isForeignKeyViolation(err):
		return services.NewInvalidReferenceError("cycle not found")
	}
	return err
}

func (s *SQLiteStore) UpdatePhase(ctx context.Context, p *services.Phase) (bool, error) {
	return affected(s.db.ExecContext(ctx, `UPDATE phases SET display_name = ? WHERE id = ?`, p.DisplayName, p.ID))
}

// DeletePhase removes the phase and returns its applications to unphased.
func (s *SQLiteStore) DeletePhase(ctx context.Context, id string) (ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `UPDATE applications SET phase_id = NULL WHERE phase_id = ?`, id); err != nil {
		return false, err
	}
	ok, err = affected(tx.ExecContext(ctx, `DELETE FROM phases WHERE id = ?`, id))
	if err != nil {
		return false, err
	}
	return ok, tx.Commit()
}

func (s *SQLiteStore) GetPhase(ctx context.Context, id string) (*services.Phase, error) {
	var p services.Phase
	err := s.db.QueryRowContext(ctx, `SELECT id, cycle_id, display_name, position FROM phases WHERE id = ?`, id).
		Scan(&p.ID, &p.CycleID, &p.DisplayName, &p.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListPhasesByCycle(ctx context.Context, cycleID string) ([]*services.Phase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, cycle_id, display_name, position FROM phases WHERE cycle_id = ? ORDER BY position ASC, id ASC`, cycleID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListPhasesByCycle: rows.Close", cerr)
		}
	}()
	out := []*services.Phase{}
	for rows.Next() {
		var p services.Phase
		if err := rows.Scan(&p.ID, &p.CycleID, &p.DisplayName, &p.Order); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ApplyPhaseOrder(ctx context.Context, cycleID string, ids []string) error {
	return s.applyOrder(ctx, "phases", cycleID, ids)
}
