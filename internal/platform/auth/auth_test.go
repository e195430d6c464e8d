package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/bharatemr/practice/internal/platform/session"
)

var testKey = []byte("test-key")

func newServer(t *testing.T, roles ...session.Role) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Use(JWTMiddleware(JWTConfig{Issuer: "practice", SigningKey: testKey, Skipper: AuthSkipper}))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	g := e.Group("", RequireRole(roles...))
	g.GET("/whoami", func(c echo.Context) error {
		u, _ := UserFromContext(c.Request().Context())
		return c.String(http.StatusOK, u.ID+"|"+string(u.Role)+"|"+u.Name)
	})
	return e
}

func do(e *echo.Echo, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func mint(t *testing.T, u session.User, ttl time.Duration) string {
	t.Helper()
	tok, err := MintToken(testKey, "practice", u, ttl)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	return tok
}

func TestJWTMiddleware_AcceptsMintedToken(t *testing.T) {
	e := newServer(t, session.RoleDoctor)
	tok := mint(t, session.User{ID: "D-1", Role: session.RoleDoctor, Name: "Dr. Iyer"}, time.Hour)

	rec := do(e, "/whoami", "Bearer "+tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "D-1|DOCTOR|Dr. Iyer" {
		t.Errorf("unexpected user %q", rec.Body.String())
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	e := newServer(t, session.RoleDoctor)
	doc := session.User{ID: "D-1", Role: session.RoleDoctor}

	otherKey, _ := MintToken([]byte("other"), "practice", doc, time.Hour)
	wrongIssuer, _ := MintToken(testKey, "elsewhere", doc, time.Hour)
	noRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "D-1", Issuer: "practice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(testKey)

	tests := []struct {
		name  string
		authz string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage", "Bearer not-a-token"},
		{"expired", "Bearer " + mint(t, doc, -time.Minute)},
		{"wrong key", "Bearer " + otherKey},
		{"wrong issuer", "Bearer " + wrongIssuer},
		{"no role", "Bearer " + noRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(e, "/whoami", tt.authz); rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := newServer(t, session.RoleDoctor)
	tests := []struct {
		role session.Role
		want int
	}{
		{session.RoleDoctor, http.StatusOK},
		{session.RoleAdmin, http.StatusOK},
		{session.RolePatient, http.StatusForbidden},
	}
	for _, tt := range tests {
		tok := mint(t, session.User{ID: "U-1", Role: tt.role}, time.Hour)
		if rec := do(e, "/whoami", "Bearer "+tok); rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.role, tt.want, rec.Code)
		}
	}
}

func TestAuthSkipper(t *testing.T) {
	e := newServer(t)
	if rec := do(e, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected public health check, got %d", rec.Code)
	}
	if !IsPublicPath("/health") || IsPublicPath("/whoami") {
		t.Error("unexpected public path set")
	}
}

func TestMintToken_ReadableByClientSession(t *testing.T) {
	tok := mint(t, session.User{ID: "P-1", Role: session.RolePatient, Name: "Meera"}, time.Hour)
	s, err := session.FromToken("Bearer " + tok)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	u, ok := s.CurrentUser()
	if !ok || u.ID != "P-1" || !u.IsPatient() || u.Name != "Meera" {
		t.Errorf("unexpected user %+v", u)
	}
}
