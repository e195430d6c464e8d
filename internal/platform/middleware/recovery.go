package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)
					rid, _ := c.Get(RequestIDKey).(string)
					logger.Error().
						Str("request_id", rid).
						Str("panic", fmt.Sprint(r)).
						Str("stack", string(stack[:n])).
						Msg("panic recovered")
					err = echo.NewHTTPError(http.StatusInternalServerError, "Server error. Please try again later")
				}
			}()
			return next(c)
		}
	}
}
