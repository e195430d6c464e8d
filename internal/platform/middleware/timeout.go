package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. The handler
// runs on the request goroutine and must honour the request context; when
// it returns after the deadline without having written a response, the
// client gets a 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"message": "Request took too long to process",
			})
		}
	}
}
