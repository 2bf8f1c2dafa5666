package middleware // middleware provides shared request processing for handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns a middleware function that enforces that the
// authenticated caller has one of the specified roles.  It assumes JWTAuth
// ran first and stored the role under CtxRole.  Anything else is answered
// with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
