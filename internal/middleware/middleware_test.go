package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/soaringjerry/intake/internal/services"
)

func principalEcho(t *testing.T, seen *services.Principal, ok *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, *ok = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuth("s3cret", "intake")
	tok, err := a.SignToken("u1", "r@example.com", services.RoleReviewer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	var seen services.Principal
	var ok bool
	h := a.WithAuth(RequireReviewer(principalEcho(t, &seen, &ok)))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status %d body %s", rr.Code, rr.Body.String())
	}
	if !ok || seen.ID != "u1" || seen.Role != services.RoleReviewer || seen.Email != "r@example.com" {
		t.Fatalf("unexpected principal %+v", seen)
	}
}

func TestRejectsForeignSecretAndExpiry(t *testing.T) {
	a := NewAuth("s3cret", "intake")
	other := NewAuth("different", "intake")
	tok, _ := other.SignToken("u1", "a@example.com", services.RoleApplicant, time.Hour)
	if _, err := a.ParseToken(tok); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := a.SignToken("u1", "a@example.com", services.RoleApplicant, time.Hour)
	a.now = time.Now
	if _, err := a.ParseToken(old); err == nil {
		t.Fatalf("expired token accepted")
	}
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UID: "u1"})
	s, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := a.ParseToken(s); err == nil {
		t.Fatalf("unsigned token accepted")
	}
}

func TestRequireAuthAndRoles(t *testing.T) {
	a := NewAuth("s3cret", "")
	var seen services.Principal
	var ok bool
	h := a.WithAuth(RequireAuth(principalEcho(t, &seen, &ok)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	tok, _ := a.SignToken("u2", "a@example.com", services.RoleApplicant, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	a.WithAuth(RequireReviewer(principalEcho(t, &seen, &ok))).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("applicant passed reviewer gate: %d", rr.Code)
	}
}

func TestCORSAllowList(t *testing.T) {
	h := CORS([]string{"https://portal.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://portal.example.com" {
		t.Fatalf("preflight not allowed: %d %v", rr.Code, rr.Header())
	}
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected origin echoed: %q", got)
	}
}
