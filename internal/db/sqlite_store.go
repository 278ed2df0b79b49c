package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/soaringjerry/intake/internal/services"
)

// SQLiteStore persists the portal in a single SQLite database. It satisfies
// every store interface the services declare.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

var (
	_ services.CycleStore       = (*SQLiteStore)(nil)
	_ services.QuestionStore    = (*SQLiteStore)(nil)
	_ services.PhaseStore       = (*SQLiteStore)(nil)
	_ services.ApplicationStore = (*SQLiteStore)(nil)
	_ services.ExportStore      = (*SQLiteStore)(nil)
	_ services.AuthStore        = (*SQLiteStore)(nil)
)

// DSN builds a data source name for the given driver with foreign keys and a
// busy timeout enabled on every pooled connection.
func DSN(driver, path string) string {
	switch driver {
	case "sqlite":
		return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	default:
		return "file:" + path + "?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"
	}
}

// Open opens the database with a driver registered by the caller: "sqlite3"
// (mattn/go-sqlite3) or "sqlite" (modernc.org/sqlite).
func Open(driver, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path required")
	}
	db, err := sql.Open(driver, DSN(driver, path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB, logger *log.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		s.logger.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func toNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func (s *SQLiteStore) parseTime(field, v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		s.logErr("parse "+field, err)
	}
	return t
}

func encodeOptions(opts []string) (sql.NullString, error) {
	if len(opts) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *SQLiteStore) decodeOptions(ns sql.NullString) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		s.logErr("decode options", err)
		return nil
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Users ---

func (s *SQLiteStore) AddUser(ctx context.Context, u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, pass_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, string(u.Role), formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return services.NewDuplicateError("email exists")
	}
	return err
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*services.User, error) {
	var u services.User
	var role, created string
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &role, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = services.Role(role)
	u.CreatedAt = s.parseTime("users.created_at", created)
	return &u, nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*services.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id, email, pass_hash, role, created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id, email, pass_hash, role, created_at FROM users WHERE id = ?`, id))
}

// --- Cycles ---

func (s *SQLiteStore) InsertCycle(ctx context.Context, c *services.Cycle) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO cycles (id, display_name, start_time, end_time) VALUES (?, ?, ?, ?)`,
		c.ID, c.DisplayName, formatTime(c.StartTime), formatTime(c.EndTime))
	if isUniqueViolation(err) {
		return services.NewDuplicateError("cycle exists")
	}
	return err
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*services.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, display_name, start_time, end_time FROM cycles WHERE id = ?`, id)
	var c services.Cycle
	var start, end string
	if err := row.Scan(&c.ID, &c.DisplayName, &start, &end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.StartTime = s.parseTime("cycles.start_time", start)
	c.EndTime = s.parseTime("cycles.end_time", end)
	return &c, nil
}

func (s *SQLiteStore) ListCycles(ctx context.Context) ([]*services.Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, display_name, start_time, end_time FROM cycles ORDER BY start_time ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListCycles: rows.Close", cerr)
		}
	}()
	out := []*services.Cycle{}
	for rows.Next() {
		var c services.Cycle
		var start, end string
		if err := rows.Scan(&c.ID, &c.DisplayName, &start, &end); err != nil {
			return nil, err
		}
		c.StartTime = s.parseTime("cycles.start_time", start)
		c.EndTime = s.parseTime("cycles.end_time", end)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- Audit ---

func (s *SQLiteStore) AddAudit(ctx context.Context, e services.AuditEntry) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, toNullString(e.Note))
	s.logErr("AddAudit", err)
}

// ListAudit returns the newest entries first.
func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]services.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `SELECT time, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListAudit: rows.Close", cerr)
		}
	}()
	out := []services.AuditEntry{}
	for rows.Next() {
		var e services.AuditEntry
		var ts string
		var note sql.NullString
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &note); err != nil {
			return nil, err
		}
		e.Time = s.parseTime("audit_log.time", ts)
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}
