package sandbox

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/auth"
	"github.com/bharatemr/practice/internal/platform/blobstore"
	"github.com/bharatemr/practice/internal/platform/db"
	"github.com/bharatemr/practice/internal/platform/middleware"
	"github.com/bharatemr/practice/internal/platform/session"
)

// Issuer is the iss claim of sandbox tokens.
const Issuer = "practice-sandbox"

type ServerConfig struct {
	SigningKey     []byte
	RequestTimeout time.Duration
	// BodyLimit caps request bodies, e.g. "1M". Empty means no cap.
	BodyLimit string
	// DB enables /health/db when set.
	DB    db.Pinger
	Stats func() *db.PoolStats
}

// NewServer wires the sandbox API under /api.
func NewServer(cfg ServerConfig, store Store, docs blobstore.Store, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.DB != nil {
		e.GET("/health/db", db.HealthHandler(cfg.DB, cfg.Stats))
	}

	api := e.Group("/api", auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     Issuer,
		SigningKey: cfg.SigningKey,
		Skipper:    auth.AuthSkipper,
	}))
	NewHandler(store, docs, logger).RegisterRoutes(api)
	NewSeedHandler(store, logger).RegisterRoutes(api.Group("/sandbox", auth.RequireRole(session.RoleAdmin)))
	return e
}

// MintToken signs a sandbox token for u.
func MintToken(key []byte, u session.User, ttl time.Duration) (string, error) {
	return auth.MintToken(key, Issuer, u, ttl)
}
