package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/soaringjerry/intake/internal/db"
	"github.com/soaringjerry/intake/internal/middleware"
	"github.com/soaringjerry/intake/internal/services"
	"github.com/soaringjerry/intake/internal/storage"
)

type capturedNotice struct {
	mu     sync.Mutex
	emails []string
}

func (c *capturedNotice) SendSubmissionNotification(_ context.Context, email, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append(c.emails, email)
	return nil
}

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*Config)) *testServer {
	t.Helper()
	sqlDB, err := db.Open("sqlite", filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if _, err := db.RunMigrations(context.Background(), sqlDB, ""); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	store, err := db.NewSQLiteStore(sqlDB, logger)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		Store:          store,
		Auth:           middleware.NewAuth("test-secret", "intake-test"),
		Notifier:       &capturedNotice{},
		Logger:         logger,
		ReviewerEmails: []string{"boss@example.com"},
		Ping:           sqlDB.PingContext,
	}
	if configure != nil {
		configure(&cfg)
	}
	rt := NewRouter(cfg)
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

func (ts *testServer) do(method, path, token string, body any, out any) int {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	if err != nil {
		ts.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
			ts.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func (ts *testServer) register(email string) (token, userID string) {
	ts.t.Helper()
	var res struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if code := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "pw-" + email}, &res); code != http.StatusCreated {
		ts.t.Fatalf("register %s: %d", email, code)
	}
	return res.Token, res.UserID
}

type apiErr struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func TestSubmissionFlowEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	boss, _ := ts.register("boss@example.com")
	alice, _ := ts.register("alice@example.com")
	bob, _ := ts.register("bob@example.com")

	var cycle struct {
		ID string `json:"id"`
	}
	now := time.Now().UTC()
	if code := ts.do(http.MethodPost, "/api/cycles", boss, map[string]any{
		"display_name": "Fall", "start_time": now.Add(-time.Hour), "end_time": now.Add(24 * time.Hour),
	}, &cycle); code != http.StatusCreated {
		t.Fatalf("create cycle: %d", code)
	}
	if code := ts.do(http.MethodPost, "/api/cycles", alice, map[string]any{
		"display_name": "Nope", "start_time": now, "end_time": now.Add(time.Hour),
	}, nil); code != http.StatusForbidden {
		t.Fatalf("applicant created a cycle: %d", code)
	}

	var name, picks struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/cycles/"+cycle.ID+"/questions", boss, map[string]any{
		"display_name": "Name", "type": "STRING", "required": true, "min_length": 1, "max_length": 50,
	}, &name)
	ts.do(http.MethodPost, "/api/cycles/"+cycle.ID+"/questions", boss, map[string]any{
		"display_name": "Picks", "type": "CHECKBOX", "options": []string{"A", "B"},
	}, &picks)
	if name.ID == "" || picks.ID == "" {
		t.Fatalf("questions not created: %q %q", name.ID, picks.ID)
	}

	var app struct {
		ID        string `json:"id"`
		Submitted bool   `json:"submitted"`
	}
	if code := ts.do(http.MethodPost, "/api/applications", alice, map[string]string{}, &app); code != http.StatusCreated {
		t.Fatalf("create application: %d", code)
	}
	if code := ts.do(http.MethodPost, "/api/applications", alice, map[string]string{}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate application: %d", code)
	}
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/responses/"+name.ID, alice, map[string]string{"value": "hi"}, nil); code != http.StatusOK {
		t.Fatalf("upsert: %d", code)
	}
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/responses/"+name.ID, bob, map[string]string{"value": "x"}, nil); code != http.StatusForbidden {
		t.Fatalf("other applicant wrote to the application: %d", code)
	}
	if code := ts.do(http.MethodPost, "/api/applications/"+app.ID+"/submit", alice, nil, &app); code != http.StatusOK || !app.Submitted {
		t.Fatalf("submit: %d %+v", code, app)
	}
	var e apiErr
	if code := ts.do(http.MethodPost, "/api/applications/"+app.ID+"/submit", alice, nil, &e); code != http.StatusConflict || e.Error != "state" {
		t.Fatalf("second submit: %d %+v", code, e)
	}
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/responses/"+picks.ID, alice, map[string]string{"value": `["A"]`}, &e); code != http.StatusConflict {
		t.Fatalf("write after submit: %d", code)
	}

	var bobApp struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/applications", bob, map[string]string{"cycle_id": cycle.ID}, &bobApp)
	ts.do(http.MethodPut, "/api/applications/"+bobApp.ID+"/responses/"+name.ID, bob, map[string]string{"value": ""}, nil)
	e = apiErr{}
	if code := ts.do(http.MethodPost, "/api/applications/"+bobApp.ID+"/submit", bob, nil, &e); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected validation failure, got %d", code)
	}
	if e.Error != "validation" || e.Field != name.ID || !strings.Contains(e.Message, "Name") {
		t.Fatalf("error should name the question: %+v", e)
	}

	var board struct {
		Applications []struct {
			ID string `json:"id"`
		} `json:"applications"`
	}
	ts.do(http.MethodGet, "/api/applications?cycle_id="+cycle.ID+"&submitted=1", boss, nil, &board)
	if len(board.Applications) != 1 || board.Applications[0].ID != app.ID {
		t.Fatalf("board: %+v", board)
	}
	if code := ts.do(http.MethodGet, "/api/applications?cycle_id="+cycle.ID, alice, nil, nil); code != http.StatusForbidden {
		t.Fatalf("applicant listed the board: %d", code)
	}
}

func TestReorderAndPhaseAssignment(t *testing.T) {
	ts := newTestServer(t)
	boss, _ := ts.register("boss@example.com")
	alice, _ := ts.register("alice@example.com")
	now := time.Now().UTC()

	var c1, c2 struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/cycles", boss, map[string]any{"display_name": "Now", "start_time": now.Add(-time.Hour), "end_time": now.Add(time.Hour)}, &c1)
	ts.do(http.MethodPost, "/api/cycles", boss, map[string]any{"display_name": "Later", "start_time": now.Add(48 * time.Hour), "end_time": now.Add(72 * time.Hour)}, &c2)

	ids := make([]string, 0, 3)
	for _, n := range []string{"Screen", "Interview", "Offer"} {
		var ph struct {
			ID string `json:"id"`
		}
		if code := ts.do(http.MethodPost, "/api/cycles/"+c1.ID+"/phases", boss, map[string]any{"display_name": n}, &ph); code != http.StatusCreated {
			t.Fatalf("create phase: %d", code)
		}
		ids = append(ids, ph.ID)
	}
	var phases struct {
		Phases []struct {
			ID    string `json:"id"`
			Order int    `json:"order"`
		} `json:"phases"`
	}
	if code := ts.do(http.MethodPost, "/api/cycles/"+c1.ID+"/phases/move", boss, map[string]string{"moved_id": ids[2], "target_id": ids[0]}, &phases); code != http.StatusOK {
		t.Fatalf("move: %d", code)
	}
	want := []string{ids[2], ids[0], ids[1]}
	for i, p := range phases.Phases {
		if p.ID != want[i] || p.Order != i {
			t.Fatalf("unexpected order %+v", phases.Phases)
		}
	}
	var e apiErr
	if code := ts.do(http.MethodPut, "/api/cycles/"+c1.ID+"/phases/order", boss, map[string][]string{"ids": ids[:2]}, &e); code != http.StatusBadRequest {
		t.Fatalf("partial order accepted: %d %+v", code, e)
	}

	var other struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/cycles/"+c2.ID+"/phases", boss, map[string]any{"display_name": "Elsewhere"}, &other)

	var app struct {
		ID      string `json:"id"`
		PhaseID string `json:"phase_id"`
	}
	ts.do(http.MethodPost, "/api/applications", alice, nil, &app)
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/phase", boss, map[string]string{"phase_id": other.ID}, &e); code != http.StatusBadRequest || e.Error != "invalid_reference" {
		t.Fatalf("cross-cycle phase: %d %+v", code, e)
	}
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/phase", boss, map[string]string{"phase_id": ids[1]}, &app); code != http.StatusOK || app.PhaseID != ids[1] {
		t.Fatalf("assign: %d %+v", code, app)
	}
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/phase", alice, map[string]any{"phase_id": nil}, nil); code != http.StatusForbidden {
		t.Fatalf("applicant assigned a phase: %d", code)
	}
	var cleared map[string]any
	if code := ts.do(http.MethodPut, "/api/applications/"+app.ID+"/phase", boss, map[string]any{"phase_id": nil}, &cleared); code != http.StatusOK {
		t.Fatalf("unassign: %d", code)
	}
	if _, ok := cleared["phase_id"]; ok {
		t.Fatalf("phase not cleared: %v", cleared)
	}
}

func TestAuthAndHealth(t *testing.T) {
	ts := newTestServer(t)
	if code := ts.do(http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	if code := ts.do(http.MethodGet, "/api/cycles", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous access: %d", code)
	}
	ts.register("carol@example.com")
	var e apiErr
	if code := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "carol@example.com", "password": "wrong"}, &e); code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d %+v", code, e)
	}
	var me struct {
		Role string `json:"role"`
	}
	var login struct {
		Token string `json:"token"`
	}
	ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "CAROL@example.com", "password": "pw-carol@example.com"}, &login)
	if code := ts.do(http.MethodGet, "/api/me", login.Token, nil, &me); code != http.StatusOK || me.Role != "applicant" {
		t.Fatalf("me: %d %+v", code, me)
	}
	if code := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "carol@example.com", "password": "x"}, &e); code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", code)
	}
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)
	boss, _ := ts.register("boss@example.com")
	alice, _ := ts.register("alice@example.com")
	now := time.Now().UTC()
	var c struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/cycles", boss, map[string]any{"display_name": "C", "start_time": now.Add(-time.Hour), "end_time": now.Add(time.Hour)}, &c)
	var q struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/cycles/"+c.ID+"/questions", boss, map[string]any{"display_name": "Langs", "type": "CHECKBOX", "options": []string{"Go", "Rust"}, "required": true}, &q)
	var app struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/applications", alice, nil, &app)
	ts.do(http.MethodPut, "/api/applications/"+app.ID+"/responses/"+q.ID, alice, map[string]string{"value": `["Go","Rust"]`}, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/export?cycle_id="+c.ID, nil)
	req.Header.Set("Authorization", "Bearer "+boss)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("export: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], ",Langs") || !strings.Contains(lines[1], "Go; Rust") {
		t.Fatalf("unexpected csv:\n%s", body)
	}

	var sum struct {
		Applications int `json:"applications"`
		Drafts       int `json:"drafts"`
		Questions    []struct {
			Answered int `json:"answered"`
		} `json:"questions"`
	}
	if code := ts.do(http.MethodGet, "/api/cycles/"+c.ID+"/analytics", boss, nil, &sum); code != http.StatusOK {
		t.Fatalf("analytics: %d", code)
	}
	if sum.Applications != 1 || sum.Drafts != 1 || len(sum.Questions) != 1 || sum.Questions[0].Answered != 1 {
		t.Fatalf("unexpected analytics %+v", sum)
	}
	if code := ts.do(http.MethodGet, "/api/cycles/"+c.ID+"/analytics", alice, nil, nil); code != http.StatusForbidden {
		t.Fatalf("applicant analytics: %d", code)
	}
}

func TestUploadKeyCannotReachAnotherApplication(t *testing.T) {
	files, err := storage.NewLocalStore(t.TempDir(), "http://files.test", []byte("file-secret"), time.Minute, 1<<20, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServerWith(t, func(cfg *Config) {
		cfg.Storage = files
		cfg.Files = files.Handler()
	})
	boss, _ := ts.register("boss@example.com")
	alice, _ := ts.register("alice@example.com")
	bob, _ := ts.register("bob@example.com")
	now := time.Now().UTC()
	var c, q, aliceApp, bobApp struct {
		ID string `json:"id"`
	}
	ts.do(http.MethodPost, "/api/cycles", boss, map[string]any{"display_name": "C", "start_time": now.Add(-time.Hour), "end_time": now.Add(time.Hour)}, &c)
	ts.do(http.MethodPost, "/api/cycles/"+c.ID+"/questions", boss, map[string]any{"display_name": "CV", "type": "FILE_UPLOAD"}, &q)
	ts.do(http.MethodPost, "/api/applications", alice, nil, &aliceApp)
	ts.do(http.MethodPost, "/api/applications", bob, nil, &bobApp)

	bobKey := services.UploadKeyPrefix(bobApp.ID, q.ID) + "cv.pdf"
	if _, err := files.Put(bobKey, strings.NewReader("bob's cv")); err != nil {
		t.Fatal(err)
	}
	if code := ts.do(http.MethodPut, "/api/applications/"+bobApp.ID+"/responses/"+q.ID, bob, map[string]string{"value": bobKey}, nil); code != http.StatusOK {
		t.Fatalf("bob upsert: %d", code)
	}

	escaping := services.UploadKeyPrefix(aliceApp.ID, q.ID) + "../../" + bobApp.ID + "/" + q.ID + "/cv.pdf"
	var e apiErr
	if code := ts.do(http.MethodPut, "/api/applications/"+aliceApp.ID+"/responses/"+q.ID, alice, map[string]string{"value": escaping}, &e); code != http.StatusUnprocessableEntity || e.Field != q.ID {
		t.Fatalf("escaping key: %d %+v", code, e)
	}
	own := services.UploadKeyPrefix(aliceApp.ID, q.ID) + "cv.pdf"
	if code := ts.do(http.MethodPut, "/api/applications/"+aliceApp.ID+"/responses/"+q.ID, alice, map[string]string{"value": own}, nil); code != http.StatusOK {
		t.Fatalf("own key: %d", code)
	}
	dl, err := files.IssueDownloadURL(context.Background(), bobKey)
	if err != nil {
		t.Fatal(err)
	}
	rel := strings.TrimPrefix(dl, "http://files.test")
	res, err := http.Get(ts.srv.URL + rel)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || string(body) != "bob's cv" {
		t.Fatalf("bob's file should survive: %d %q", res.StatusCode, body)
	}
}
