package middleware

import (
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// recoveryStackBytes bounds the stack capture so a deeply nested panic
// cannot produce an unbounded log record.
const recoveryStackBytes = 8 << 10

// Recovery converts handler panics into 500 responses. The panic value and
// the goroutine stack are logged under the request's correlation id; the
// client only ever sees a generic message.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, recoveryStackBytes)
				stack = stack[:runtime.Stack(stack, false)]

				logger.Error().
					Str("request_id", RequestIDFrom(c)).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Interface("panic", r).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
