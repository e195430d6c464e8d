package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/bharatemr/practice/internal/platform/session"
)

type contextKey string

const userKey contextKey = "user"

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// Skipper lets requests through without a token.
	Skipper func(echo.Context) bool
}

// JWTMiddleware verifies the HS256 bearer token and stores the signed-in
// user on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &session.Claims{}
			token, err := parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			role, ok := claims.Role()
			if !ok || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject or role")
			}

			u := session.User{ID: claims.Subject, Role: role, Name: claims.Name}
			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), u)))
			return next(c)
		}
	}
}

func WithUser(ctx context.Context, u session.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the user set by JWTMiddleware.
func UserFromContext(ctx context.Context) (session.User, bool) {
	u, ok := ctx.Value(userKey).(session.User)
	return u, ok
}

// MintToken signs a token for u that expires after ttl.
func MintToken(key []byte, issuer string, u session.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  u.Name,
		Roles: []string{string(u.Role)},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
