package middleware

import "github.com/labstack/echo/v4"

// currentUserID returns the session subject stored by JWTAuth, or "anon"
// for unauthenticated requests such as waiter terminals.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
