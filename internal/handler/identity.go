package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-seat-booking/internal/repository"
)

// IdentityHandler answers the pre-booking "does this email have an
// account" probe that routes users into login or registration.
type IdentityHandler struct {
	Users *repository.UserRepo
}

func NewIdentityHandler(u *repository.UserRepo) *IdentityHandler {
	return &IdentityHandler{Users: u}
}

// Exists handles GET /v1/users/exists?email=. The answer is a bare
// boolean and carries no account details: it routes the UI, it never
// authenticates. The route sits behind the rate limiter because it can
// be used to enumerate registered addresses.
func (h *IdentityHandler) Exists(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" || !strings.Contains(email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	exists, err := h.Users.EmailExists(ctx, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}
