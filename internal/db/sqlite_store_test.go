package db

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/soaringjerry/intake/internal/services"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intake.db")
	sqlDB, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	ctx := context.Background()
	ran, err := RunMigrations(ctx, sqlDB, "")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(ran) == 0 {
		t.Fatalf("expected embedded migrations to run")
	}
	again, err := RunMigrations(ctx, sqlDB, "")
	if err != nil || len(again) != 0 {
		t.Fatalf("second run should be a no-op, got %v %v", again, err)
	}
	store, err := NewSQLiteStore(sqlDB, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return store
}

func seedCycle(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if err := s.InsertCycle(context.Background(), &services.Cycle{ID: id, DisplayName: "Cycle " + id, StartTime: start, EndTime: start.AddDate(0, 3, 0)}); err != nil {
		t.Fatalf("insert cycle: %v", err)
	}
}

func seedUser(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	if err := s.AddUser(context.Background(), &services.User{ID: id, Email: id + "@example.com", PassHash: []byte("x"), Role: services.RoleApplicant, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("add user: %v", err)
	}
}

func TestQuestionRoundTripAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCycle(t, s, "c1")

	lo, hi := 2, 40
	qs := []*services.Question{
		{ID: "q1", CycleID: "c1", DisplayName: "Name", Type: services.TypeString, Required: true, Order: 0, MinLength: &lo, MaxLength: &hi, Placeholder: "Ada"},
		{ID: "q2", CycleID: "c1", DisplayName: "Skills", Type: services.TypeCheckbox, Order: 1, Options: []string{"Go", "SQL"}},
		{ID: "q3", CycleID: "c1", DisplayName: "CV", Type: services.TypeFileUpload, Order: 2},
	}
	for _, q := range qs {
		if err := s.InsertQuestion(ctx, q); err != nil {
			t.Fatalf("insert %s: %v", q.ID, err)
		}
	}
	got, err := s.GetQuestion(ctx, "q1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if *got.MinLength != 2 || *got.MaxLength != 40 || got.Placeholder != "Ada" || !got.Required {
		t.Fatalf("unexpected question %+v", got)
	}
	cb, _ := s.GetQuestion(ctx, "q2")
	if !reflect.DeepEqual(cb.Options, []string{"Go", "SQL"}) || cb.MinLength != nil {
		t.Fatalf("unexpected checkbox %+v", cb)
	}

	if err := s.ApplyQuestionOrder(ctx, "c1", []string{"q3", "q1", "q2"}); err != nil {
		t.Fatalf("apply order: %v", err)
	}
	list, err := s.ListQuestionsByCycle(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"q3", "q1", "q2"} {
		if list[i].ID != want || list[i].Order != i {
			t.Fatalf("position %d: got %s/%d", i, list[i].ID, list[i].Order)
		}
	}
	if err := s.ApplyQuestionOrder(ctx, "c1", []string{"q3", "q1"}); !services.IsCode(err, services.ErrorInvalid) {
		t.Fatalf("partial order should be rejected, got %v", err)
	}
	if err := s.ApplyQuestionOrder(ctx, "c1", []string{"q3", "q1", "zz"}); !services.IsCode(err, services.ErrorInvalid) {
		t.Fatalf("foreign id should be rejected, got %v", err)
	}
	list, _ = s.ListQuestionsByCycle(ctx, "c1")
	if list[0].ID != "q3" {
		t.Fatalf("rejected order must not change positions, got %s first", list[0].ID)
	}
	if err := s.InsertQuestion(ctx, &services.Question{ID: "qx", CycleID: "missing", DisplayName: "X", Type: services.TypeBoolean}); !services.IsCode(err, services.ErrorInvalidReference) {
		t.Fatalf("unknown cycle should be invalid reference, got %v", err)
	}
}

func TestInsertAtPositionIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCycle(t, s, "c1")
	for i, id := range []string{"p1", "p2"} {
		if err := s.InsertPhase(ctx, &services.Phase{ID: id, CycleID: "c1", DisplayName: id, Order: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertPhaseAt(ctx, &services.Phase{ID: "p0", CycleID: "c1", DisplayName: "Screening"}, []string{"p0", "p1", "p2"}); err != nil {
		t.Fatalf("insert at: %v", err)
	}
	list, _ := s.ListPhasesByCycle(ctx, "c1")
	for i, want := range []string{"p0", "p1", "p2"} {
		if list[i].ID != want || list[i].Order != i {
			t.Fatalf("position %d: got %s/%d", i, list[i].ID, list[i].Order)
		}
	}

	// an order that omits an existing row fails and the insert is rolled back
	err := s.InsertQuestionAt(ctx, &services.Question{ID: "qa", CycleID: "c1", DisplayName: "A", Type: services.TypeBoolean}, []string{"qa", "ghost"})
	if !services.IsCode(err, services.ErrorInvalid) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	if q, _ := s.GetQuestion(ctx, "qa"); q != nil {
		t.Fatalf("failed insert left question behind: %+v", q)
	}
	if err := s.InsertPhaseAt(ctx, &services.Phase{ID: "px", CycleID: "c1", DisplayName: "X"}, []string{"px", "p0"}); !services.IsCode(err, services.ErrorInvalid) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	if p, _ := s.GetPhase(ctx, "px"); p != nil {
		t.Fatalf("failed insert left phase behind: %+v", p)
	}
}

func TestApplicationLifecycleStorage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCycle(t, s, "c1")
	seedUser(t, s, "u1")
	if err := s.InsertQuestion(ctx, &services.Question{ID: "q1", CycleID: "c1", DisplayName: "Q", Type: services.TypeBoolean}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPhase(ctx, &services.Phase{ID: "p1", CycleID: "c1", DisplayName: "Interview"}); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	app := &services.Application{ID: "a1", UserID: "u1", CycleID: "c1", CreatedAt: now}
	if err := s.InsertApplication(ctx, app); err != nil {
		t.Fatalf("insert application: %v", err)
	}
	dup := &services.Application{ID: "a2", UserID: "u1", CycleID: "c1", CreatedAt: now}
	if err := s.InsertApplication(ctx, dup); !services.IsCode(err, services.ErrorDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	r := &services.Response{ID: "r1", QuestionID: "q1", ApplicationID: "a1", Value: "true", UpdatedAt: now}
	if ok, err := s.UpsertDraftResponse(ctx, r); err != nil || !ok {
		t.Fatalf("first upsert: %v %v", ok, err)
	}
	r2 := &services.Response{ID: "r2", QuestionID: "q1", ApplicationID: "a1", Value: "false", UpdatedAt: now}
	if ok, err := s.UpsertDraftResponse(ctx, r2); err != nil || !ok {
		t.Fatalf("second upsert: %v %v", ok, err)
	}
	if r2.ID != "r1" {
		t.Fatalf("upsert should keep the original row id, got %s", r2.ID)
	}
	rs, _ := s.ListResponses(ctx, "a1")
	if len(rs) != 1 || rs[0].Value != "false" {
		t.Fatalf("expected one updated response, got %+v", rs)
	}

	if ok, err := s.MarkSubmitted(ctx, "a1", now); err != nil || !ok {
		t.Fatalf("mark submitted: %v %v", ok, err)
	}
	if ok, _ := s.MarkSubmitted(ctx, "a1", now); ok {
		t.Fatalf("second submit must not flip again")
	}
	if ok, _ := s.UpsertDraftResponse(ctx, &services.Response{ID: "r3", QuestionID: "q1", ApplicationID: "a1", Value: "true", UpdatedAt: now}); ok {
		t.Fatalf("upsert after submit must be refused")
	}
	got, _ := s.GetApplication(ctx, "a1")
	if !got.Submitted || got.SubmittedAt == nil || !got.SubmittedAt.Equal(now) {
		t.Fatalf("unexpected stored application %+v", got)
	}

	if ok, err := s.SetApplicationPhase(ctx, "a1", "p1"); err != nil || !ok {
		t.Fatalf("set phase: %v %v", ok, err)
	}
	board, _ := s.ListApplications(ctx, services.ApplicationFilter{CycleID: "c1", PhaseID: "p1"})
	if len(board) != 1 {
		t.Fatalf("expected application in phase, got %d", len(board))
	}
	if ok, err := s.DeletePhase(ctx, "p1"); err != nil || !ok {
		t.Fatalf("delete phase: %v %v", ok, err)
	}
	unphased, _ := s.ListApplications(ctx, services.ApplicationFilter{CycleID: "c1", Unphased: true, SubmittedOnly: true})
	if len(unphased) != 1 || unphased[0].PhaseID != "" {
		t.Fatalf("application should be unphased after phase delete: %+v", unphased)
	}

	if ok, err := s.DeleteQuestion(ctx, "q1"); err != nil || !ok {
		t.Fatalf("delete question: %v %v", ok, err)
	}
	if rs, _ := s.ListResponses(ctx, "a1"); len(rs) != 0 {
		t.Fatalf("responses should be removed with their question")
	}
}

func TestUsersAndAudit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "u1")
	if err := s.AddUser(ctx, &services.User{ID: "u2", Email: "u1@example.com", PassHash: []byte("x"), CreatedAt: time.Now()}); !services.IsCode(err, services.ErrorDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	u, err := s.FindUserByEmail(ctx, "u1@example.com")
	if err != nil || u == nil || u.ID != "u1" || u.Role != services.RoleApplicant {
		t.Fatalf("find user gave %+v %v", u, err)
	}
	if u, _ := s.FindUserByEmail(ctx, "nobody@example.com"); u != nil {
		t.Fatalf("expected nil for missing user")
	}

	s.AddAudit(ctx, services.AuditEntry{Time: time.Now(), Actor: "r", Action: "first", Target: "x"})
	s.AddAudit(ctx, services.AuditEntry{Time: time.Now(), Actor: "r", Action: "second", Target: "y", Note: "n"})
	entries, err := s.ListAudit(ctx, 10)
	if err != nil || len(entries) != 2 || entries[0].Action != "second" || entries[0].Note != "n" {
		t.Fatalf("audit gave %+v %v", entries, err)
	}
}

func TestServicesOverSQLite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCycle(t, s, "c1")
	reviewer := services.Principal{ID: "rev", Role: services.RoleReviewer}
	qs := services.NewQuestionService(s)
	for _, name := range []string{"A", "B", "C", "D"} {
		if _, err := qs.Create(ctx, reviewer, &services.Question{CycleID: "c1", DisplayName: name, Type: services.TypeBoolean}, nil); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	list, _ := qs.ListByCycle(ctx, "c1")
	ids := services.OrderKeys(list)
	out, err := qs.Move(ctx, reviewer, "c1", ids[0], ids[3])
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []string{ids[1], ids[2], ids[3], ids[0]}
	if got := services.OrderKeys(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("move returned %v want %v", got, want)
	}
	stored, _ := qs.ListByCycle(ctx, "c1")
	if got := services.OrderKeys(stored); !reflect.DeepEqual(got, want) {
		t.Fatalf("stored order %v want %v", got, want)
	}
}
