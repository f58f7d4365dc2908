package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-seat-booking/internal/model"
	"github.com/iliyamo/library-seat-booking/internal/repository"
)

// BrowseHandler serves the public library catalog. These routes sit
// behind the response cache; they are the only ones that may.
type BrowseHandler struct {
	Libraries *repository.LibraryRepo
	Bookings  *repository.BookingRepo
}

func NewBrowseHandler(l *repository.LibraryRepo, b *repository.BookingRepo) *BrowseHandler {
	return &BrowseHandler{Libraries: l, Bookings: b}
}

type libraryResp struct {
	ID              uint64 `json:"id"`
	Name            string `json:"name"`
	City            string `json:"city"`
	Address         string `json:"address"`
	Capacity        uint32 `json:"capacity"`
	MonthlyFeeCents uint32 `json:"monthly_fee_cents"`
}

func toLibraryResp(l model.Library) libraryResp {
	return libraryResp{
		ID:              l.ID,
		Name:            l.Name,
		City:            l.City,
		Address:         l.Address,
		Capacity:        l.Capacity(),
		MonthlyFeeCents: l.MonthlyFeeCents,
	}
}

// List handles GET /v1/libraries.
func (h *BrowseHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	libs, err := h.Libraries.ListActive(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]libraryResp, 0, len(libs))
	for _, l := range libs {
		out = append(out, toLibraryResp(l))
	}
	return c.JSON(http.StatusOK, echo.Map{"libraries": out})
}

// Get handles GET /v1/libraries/:id.
func (h *BrowseHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid library id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l, err := h.Libraries.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "library not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toLibraryResp(*l))
}

// Availability handles GET /v1/libraries/:id/availability. The number
// is informational for the browse page; the authoritative check happens
// again inside the order and confirmation transactions.
func (h *BrowseHandler) Availability(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid library id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l, err := h.Libraries.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "library not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	occupied, err := h.Bookings.CountActive(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	capacity := l.Capacity()
	available := uint32(0)
	if occupied < capacity {
		available = capacity - occupied
	}
	return c.JSON(http.StatusOK, echo.Map{
		"library_id": id,
		"capacity":   capacity,
		"occupied":   occupied,
		"available":  available,
	})
}
