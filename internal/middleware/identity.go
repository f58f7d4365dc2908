package middleware

// identity.go holds small helpers for pulling the authenticated user
// out of the Echo context. Handlers use the typed accessors; the rate
// limiter uses the string form for bucket keys.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's id, or 0 when the request is
// anonymous or JWTAuth did not run.
func UserID(c echo.Context) uint64 {
	if v, ok := c.Get("user_id").(uint64); ok {
		return v
	}
	return 0
}

// UserEmail returns the authenticated email claim, or "".
func UserEmail(c echo.Context) string {
	if v, ok := c.Get("email").(string); ok {
		return v
	}
	return ""
}

// currentUserID is the rate limiter's key component for a user.
func currentUserID(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
