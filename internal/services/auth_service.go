package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	AddUser(ctx context.Context, u *User) error
}

type TokenSigner func(uid, email string, role Role, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
	reviewers map[string]bool
}

type AuthResult struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// NewAuthService builds the sign-in service. Accounts whose email appears in
// reviewerEmails are given the reviewer role.
func NewAuthService(store AuthStore, signer TokenSigner, ttl time.Duration, reviewerEmails []string) *AuthService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	reviewers := make(map[string]bool, len(reviewerEmails))
	for _, e := range reviewerEmails {
		if e = normalizeEmail(e); e != "" {
			reviewers[e] = true
		}
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  ttl,
		reviewers: reviewers,
	}
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *AuthService) roleFor(email string, stored Role) Role {
	if s.reviewers[email] {
		return RoleReviewer
	}
	if stored == "" {
		return RoleApplicant
	}
	return stored
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if !strings.Contains(email, "@") {
		return nil, NewInvalidError("invalid email")
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewDuplicateError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{ID: s.idGen("u", 9), Email: email, PassHash: hash, Role: s.roleFor(email, ""), CreatedAt: s.now()}
	if err := s.store.AddUser(ctx, u); err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	u.Role = s.roleFor(u.Email, u.Role)
	return s.issue(u)
}

func (s *AuthService) issue(u *User) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Email, u.Role, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Role: u.Role}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
