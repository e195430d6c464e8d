// Package session exposes the signed-in user to the rest of the client. A
// Provider is handed to whatever needs identity; there is no package-level
// current user.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the account type of a user.
type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User is the identity the core reads; it never modifies it.
type User struct {
	ID   string
	Role Role
	Name string
}

func (u User) IsDoctor() bool  { return u.Role == RoleDoctor }
func (u User) IsPatient() bool { return u.Role == RolePatient }

// Provider answers who is signed in.
type Provider interface {
	CurrentUser() (User, bool)
	IsAuthenticated() bool
}

// Claims is the bearer token payload shared by the client and the sandbox
// backend.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

// Role returns the first recognised role in the claims.
func (c *Claims) Role() (Role, bool) {
	for _, r := range c.Roles {
		if role, err := ParseRole(r); err == nil {
			return role, true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Static
// ---------------------------------------------------------------------------

// Static is a Provider for a fixed user. The zero value is signed out.
type Static struct {
	user *User
}

func NewStatic(u User) *Static { return &Static{user: &u} }

func (s *Static) CurrentUser() (User, bool) {
	if s == nil || s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Static) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// ---------------------------------------------------------------------------
// Token
// ---------------------------------------------------------------------------

var (
	ErrNoToken      = errors.New("no session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Token is a Provider backed by a bearer JWT. The signature is not checked
// here; the server that issued the token verifies it on every request.
type Token struct {
	mu     sync.RWMutex
	raw    string
	claims *Claims
	user   User
	now    func() time.Time
}

// FromToken parses raw and returns a session for it.
func FromToken(raw string) (*Token, error) {
	t := &Token{now: time.Now}
	if err := t.Set(raw); err != nil {
		return nil, err
	}
	return t, nil
}

// WithClock replaces the time source used for expiry checks.
func (t *Token) WithClock(now func() time.Time) *Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	return t
}

// Set replaces the session token, as after a login.
func (t *Token) Set(raw string) error {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return ErrNoToken
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("parsing session token: %w", err)
	}
	if claims.Subject == "" {
		return fmt.Errorf("session token has no subject")
	}
	role, ok := claims.Role()
	if !ok {
		return fmt.Errorf("session token has no recognised role")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw = raw
	t.claims = claims
	t.user = User{ID: claims.Subject, Role: role, Name: claims.Name}
	return nil
}

// Clear signs the user out.
func (t *Token) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw = ""
	t.claims = nil
	t.user = User{}
}

// Raw returns the bearer token, or "" when signed out or expired.
func (t *Token) Raw() string {
	if !t.IsAuthenticated() {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.raw
}

// Validate reports why the session is unusable, if it is.
func (t *Token) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.claims == nil {
		return ErrNoToken
	}
	if exp := t.claims.ExpiresAt; exp != nil && !t.now().Before(exp.Time) {
		return ErrTokenExpired
	}
	return nil
}

func (t *Token) CurrentUser() (User, bool) {
	if t.Validate() != nil {
		return User{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.user, true
}

func (t *Token) IsAuthenticated() bool {
	return t.Validate() == nil
}
