package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-seat-booking/internal/config"
	"github.com/iliyamo/library-seat-booking/internal/gateway"
	"github.com/iliyamo/library-seat-booking/internal/middleware"
	"github.com/iliyamo/library-seat-booking/internal/model"
	"github.com/iliyamo/library-seat-booking/internal/queue"
	"github.com/iliyamo/library-seat-booking/internal/repository"
	"github.com/iliyamo/library-seat-booking/internal/service"
)

// OrderHandler owns the two authoritative booking endpoints: order
// creation and payment verification. Both run their writes inside a
// transaction that locks the library row first, which is the
// single-writer guarantee the whole flow leans on: idempotent creation
// and the exactly-once CREATED to PAID transition both serialize there.
type OrderHandler struct {
	DB        *sql.DB
	Cfg       config.Config
	Libraries *repository.LibraryRepo
	Orders    *repository.OrderRepo
	Bookings  *repository.BookingRepo
}

func NewOrderHandler(db *sql.DB, cfg config.Config, l *repository.LibraryRepo, o *repository.OrderRepo, b *repository.BookingRepo) *OrderHandler {
	return &OrderHandler{DB: db, Cfg: cfg, Libraries: l, Orders: o, Bookings: b}
}

// ----- DTOs (field names follow the consumed API contract) -----

type createOrderReq struct {
	UserEmail string `json:"userEmail"`
	LibraryID uint64 `json:"libraryId"`
}

type gatewayParamsResp struct {
	KeyID       string `json:"keyId"`
	CheckoutURL string `json:"checkoutUrl"`
	Description string `json:"description"`
}

type createOrderResp struct {
	OrderReference string            `json:"orderReference"`
	AmountDue      uint32            `json:"amountDue"`
	GatewayParams  gatewayParamsResp `json:"gatewayParams"`
}

type verifyReq struct {
	OrderReference   string `json:"orderReference"`
	PaymentReference string `json:"paymentReference"`
	Signature        string `json:"signature"`
	UserEmail        string `json:"userEmail"`
}

type bookingResp struct {
	SeatNumber string    `json:"seatNumber"`
	ValidUntil time.Time `json:"validUntil"`
}

type verifyResp struct {
	Confirmed bool         `json:"confirmed"`
	Booking   *bookingResp `json:"booking,omitempty"`
}

// Create handles POST /v1/orders. It is idempotent per unpaid order:
// while the caller has a CREATED, unexpired order for the library, the
// same order comes back instead of a new one, so a client retrying
// after an ambiguous network failure can never open a second charge.
//
// 409 means the library is full; the flow treats that as terminal and
// never shows the payment page.
func (h *OrderHandler) Create(c echo.Context) error {
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.LibraryID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "libraryId required"})
	}
	// orders bind to the token's identity, not to whatever email is in
	// the body
	userID := middleware.UserID(c)
	email := middleware.UserEmail(c)
	if userID == 0 || email == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if req.UserEmail != "" && repository.NormalizeEmail(req.UserEmail) != email {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "email does not match token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	lib, err := h.Libraries.LockByIDTx(ctx, tx, req.LibraryID)
	if err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "library not found"})
		case repository.ErrLibraryClosed:
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "library not accepting bookings"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
	}

	occupied, err := h.Bookings.CountActiveTx(ctx, tx, lib.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if occupied >= lib.Capacity() {
		return c.JSON(http.StatusConflict, echo.Map{"error": "no seats available"})
	}

	// existing unpaid order wins; this is the idempotency answer
	order, err := h.Orders.FindOpenTx(ctx, tx, userID, lib.ID)
	status := http.StatusOK
	if err == repository.ErrOrderNotFound {
		ref := "ord_" + uuid.NewString()
		order, err = h.Orders.CreateTx(ctx, tx, ref, userID, lib.ID, lib.MonthlyFeeCents,
			time.Duration(h.Cfg.OrderTTLMin)*time.Minute)
		status = http.StatusCreated
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create order failed"})
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.JSON(status, createOrderResp{
		OrderReference: order.OrderRef,
		AmountDue:      order.AmountCents,
		GatewayParams: gatewayParamsResp{
			KeyID:       h.Cfg.GatewayKeyID,
			CheckoutURL: h.Cfg.GatewayCheckout,
			Description: "Monthly seat at " + lib.Name,
		},
	})
}

// Verify handles POST /v1/orders/verify. The client's gateway success
// callback is only a claim; this endpoint re-checks the proof signature
// with the gateway secret and is the sole place a payment becomes real.
// Only here does the order flip to PAID and a seat get assigned, inside
// one transaction, exactly once regardless of how many verification
// requests race for the same order.
//
// A rejection is a clean 200 with confirmed=false, never an HTTP error:
// for the flow the distinction matters, because any unconfirmed outcome
// after a gateway success routes the user to support.
func (h *OrderHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.OrderReference == "" || req.PaymentReference == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "orderReference/paymentReference required"})
	}
	userID := middleware.UserID(c)
	if userID == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	// independent check against the gateway; the client's word counts
	// for nothing here
	proof := gateway.Proof{
		OrderRef:   req.OrderReference,
		PaymentRef: req.PaymentReference,
		Signature:  req.Signature,
	}
	if !gateway.VerifyProof(h.Cfg.GatewaySecret, proof) {
		return c.JSON(http.StatusOK, verifyResp{Confirmed: false})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := h.Orders.GetByRefTx(ctx, tx, req.OrderReference)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return c.JSON(http.StatusOK, verifyResp{Confirmed: false})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if order.UserID != userID {
		return c.JSON(http.StatusOK, verifyResp{Confirmed: false})
	}

	// a repeated verification of an already paid order answers with the
	// existing booking instead of failing
	if order.Status == model.OrderStatusPaid {
		return h.respondExistingBooking(c, ctx, order.ID)
	}
	if order.Status != model.OrderStatusCreated {
		return c.JSON(http.StatusOK, verifyResp{Confirmed: false})
	}

	lib, err := h.Libraries.LockByIDTx(ctx, tx, order.LibraryID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	occupied, err := h.Bookings.CountActiveTx(ctx, tx, lib.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if occupied >= lib.Capacity() {
		// the library filled up between order and payment; the money
		// question now belongs to support, not to a retry
		_ = h.Orders.MarkFailedTx(ctx, tx, order.ID)
		if err := tx.Commit(); err == nil {
			committed = true
		}
		return c.JSON(http.StatusOK, verifyResp{Confirmed: false})
	}

	if err := h.Orders.MarkPaidTx(ctx, tx, order.ID); err != nil {
		if err == repository.ErrAlreadyPaid {
			return h.respondExistingBooking(c, ctx, order.ID)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	seat := repository.SeatLabel(occupied, lib.SeatsPerRow)
	validUntil := time.Now().UTC().Add(time.Duration(h.Cfg.SubscriptionDays) * 24 * time.Hour)
	booking, err := h.Bookings.CreateTx(ctx, tx, order.ID, order.UserID, lib.ID, seat, validUntil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create booking failed"})
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	// fire-and-forget: the booking is committed, a broker outage must
	// not undo a confirmed payment
	ev := queue.OrderPaidEvent{
		OrderID:     order.ID,
		OrderRef:    order.OrderRef,
		PaymentRef:  req.PaymentReference,
		UserID:      order.UserID,
		UserEmail:   middleware.UserEmail(c),
		LibraryID:   lib.ID,
		LibraryName: lib.Name,
		SeatLabel:   booking.SeatLabel,
		AmountCents: order.AmountCents,
		ValidUntil:  booking.ValidUntil.Format(time.RFC3339),
		PaidAt:      time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pubCancel()
		_ = service.PublishOrderPaid(pubCtx, ev)
	}()

	return c.JSON(http.StatusOK, verifyResp{
		Confirmed: true,
		Booking:   &bookingResp{SeatNumber: booking.SeatLabel, ValidUntil: booking.ValidUntil},
	})
}

func (h *OrderHandler) respondExistingBooking(c echo.Context, ctx context.Context, orderID uint64) error {
	b, err := h.Bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, verifyResp{
		Confirmed: true,
		Booking:   &bookingResp{SeatNumber: b.SeatLabel, ValidUntil: b.ValidUntil},
	})
}

// MyBookings handles GET /v1/bookings, listing the caller's seats.
func (h *OrderHandler) MyBookings(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	bookings, err := h.Bookings.ListByUser(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	type item struct {
		LibraryID  uint64    `json:"library_id"`
		SeatLabel  string    `json:"seat_label"`
		ValidUntil time.Time `json:"valid_until"`
	}
	out := make([]item, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, item{LibraryID: b.LibraryID, SeatLabel: b.SeatLabel, ValidUntil: b.ValidUntil})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}
