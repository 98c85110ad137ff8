package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/platform/auth"
	"github.com/praxis/praxis/internal/platform/db"
)

const maxStackBytes = 8 << 10

// Recovery turns a handler panic into a 500 and logs it with whatever request
// context is known at that point. Outside of Logger it falls back to logger.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				stack := make([]byte, maxStackBytes)
				stack = stack[:runtime.Stack(stack, false)]

				ctx := c.Request().Context()
				l := zerolog.Ctx(ctx)
				if l.GetLevel() == zerolog.Disabled {
					rid, _ := c.Get("request_id").(string)
					fallback := logger.With().Str("request_id", rid).Logger()
					l = &fallback
				}

				l.Error().
					Str("panic", fmt.Sprint(r)).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("tenant", db.TenantFromContext(ctx)).
					Str("jti", auth.TokenIDFromContext(ctx)).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
