package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/soaringjerry/intake/internal/services"
)

type authCtxKey int

const authKey authCtxKey = 7

type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Auth signs and verifies session tokens.
type Auth struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuth(secret, issuer string) *Auth {
	if secret == "" {
		secret = "intake-dev-secret"
	}
	return &Auth{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// SignToken matches services.TokenSigner.
func (a *Auth) SignToken(uid, email string, role services.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{UID: uid, Email: email, Role: string(role), RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ParseToken(tok string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) { return a.secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid && c.UID != "" {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// WithAuth attaches the caller to the context if a valid bearer token is present.
func (a *Auth) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			if c, err := a.ParseToken(tok); err == nil {
				ctx := context.WithValue(r.Context(), authKey, c)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(authKey).(*Claims); !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !p.IsReviewer() {
			writeAuthError(w, http.StatusForbidden, "forbidden", "reviewer role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + msg + `"}`))
}

// PrincipalFromContext returns the authenticated caller.
func PrincipalFromContext(ctx context.Context) (services.Principal, bool) {
	c, ok := ctx.Value(authKey).(*Claims)
	if !ok {
		return services.Principal{}, false
	}
	role := services.Role(c.Role)
	if role != services.RoleReviewer {
		role = services.RoleApplicant
	}
	return services.Principal{ID: c.UID, Email: c.Email, Role: role}, true
}

// ContextWithPrincipal is used by tests and internal callers that bypass tokens.
func ContextWithPrincipal(ctx context.Context, p services.Principal) context.Context {
	return context.WithValue(ctx, authKey, &Claims{UID: p.ID, Email: p.Email, Role: string(p.Role)})
}
