package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-seat-booking/internal/backend"
	"github.com/iliyamo/library-seat-booking/internal/config"
	"github.com/iliyamo/library-seat-booking/internal/flow"
	"github.com/iliyamo/library-seat-booking/internal/gateway"
)

// flowSessionTTL bounds how long an abandoned flow session is kept. An
// in-flight verification still resolves after eviction; only the handle
// for polling it is gone.
const flowSessionTTL = 2 * time.Hour

// sessionAdapter wraps the shared hosted gateway so each flow session
// can hand its client the checkout session it just opened.
type sessionAdapter struct {
	hosted *gateway.Hosted

	mu   sync.Mutex
	last *gateway.Session
}

func (a *sessionAdapter) Open(p gateway.Params) (<-chan gateway.Outcome, error) {
	ch, s, err := a.hosted.OpenSession(p)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.last = s
	a.mu.Unlock()
	return ch, nil
}

func (a *sessionAdapter) lastSession() *gateway.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

type flowSession struct {
	controller *flow.Controller
	client     *backend.Client
	adapter    *sessionAdapter
	touched    time.Time
}

// FlowHandler hosts booking flow controllers for browser clients. Each
// session holds one ephemeral BookingAttempt; nothing here is
// persisted, and an evicted or abandoned session simply disappears the
// way a closed tab would.
type FlowHandler struct {
	Cfg    config.Config
	Hosted *gateway.Hosted

	mu       sync.Mutex
	sessions map[string]*flowSession
}

func NewFlowHandler(cfg config.Config, hosted *gateway.Hosted) *FlowHandler {
	return &FlowHandler{
		Cfg:      cfg,
		Hosted:   hosted,
		sessions: make(map[string]*flowSession),
	}
}

// Sweep drops sessions idle past their TTL. The server runs this on a
// ticker.
func (h *FlowHandler) Sweep() int {
	cutoff := time.Now().Add(-flowSessionTTL)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, s := range h.sessions {
		if s.touched.Before(cutoff) {
			delete(h.sessions, id)
			n++
		}
	}
	return n
}

func (h *FlowHandler) get(id string) *flowSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sessions[id]
	if s != nil {
		s.touched = time.Now()
	}
	return s
}

// ----- DTOs -----

type startFlowReq struct {
	LibraryID uint64 `json:"library_id"`
}

type identityReq struct {
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
}

type paymentCallbackReq struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"` // success | cancel | error
	Proof     *struct {
		OrderRef   string `json:"order_ref"`
		PaymentRef string `json:"payment_ref"`
		Signature  string `json:"signature"`
	} `json:"proof"`
	Error string `json:"error"`
}

// flowView is everything the surrounding application gets to see: the
// step, the failure surface and, only after success, the booking. Order
// parameters and proof fields never leave the controller.
type flowView struct {
	FlowID        string `json:"flow_id"`
	Step          string `json:"step"`
	FailureKind   string `json:"failure_kind,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	Booking       *struct {
		SeatNumber string    `json:"seatNumber"`
		ValidUntil time.Time `json:"validUntil"`
	} `json:"booking,omitempty"`
}

func viewOf(id string, a flow.Attempt) flowView {
	v := flowView{
		FlowID:        id,
		Step:          string(a.Step),
		FailureKind:   string(a.FailureKind),
		FailureReason: a.FailureReason,
	}
	if a.Step == flow.StepSucceeded {
		v.Booking = &struct {
			SeatNumber string    `json:"seatNumber"`
			ValidUntil time.Time `json:"validUntil"`
		}{SeatNumber: a.SeatLabel, ValidUntil: a.ValidUntil}
	}
	return v
}

// Start handles POST /v1/flow: a new attempt for a library.
func (h *FlowHandler) Start(c echo.Context) error {
	var req startFlowReq
	if err := c.Bind(&req); err != nil || req.LibraryID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "library_id required"})
	}

	id := uuid.NewString()
	client := backend.New(h.Cfg.BackendBaseURL, "")
	adapter := &sessionAdapter{hosted: h.Hosted}
	s := &flowSession{
		controller: flow.New(req.LibraryID, client, client, adapter, client, nil),
		client:     client,
		adapter:    adapter,
		touched:    time.Now(),
	}

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()

	return c.JSON(http.StatusCreated, viewOf(id, s.controller.Snapshot()))
}

// Get handles GET /v1/flow/:id.
func (h *FlowHandler) Get(c echo.Context) error {
	s := h.get(c.Param("id"))
	if s == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flow not found"})
	}
	return c.JSON(http.StatusOK, viewOf(c.Param("id"), s.controller.Snapshot()))
}

// Identity handles POST /v1/flow/:id/identity. Without an access token
// it only resolves the email to a login or registration route; with one
// it binds the authenticated identity and advances to AwaitingPayment.
func (h *FlowHandler) Identity(c echo.Context) error {
	s := h.get(c.Param("id"))
	if s == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flow not found"})
	}
	var req identityReq
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	if req.AccessToken == "" {
		route, err := s.controller.ResolveIdentity(c.Request().Context(), req.Email)
		if err != nil {
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"route": string(route)})
	}

	s.client.SetToken(req.AccessToken)
	if err := s.controller.ConfirmIdentity(req.Email); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, viewOf(c.Param("id"), s.controller.Snapshot()))
}

// Order handles POST /v1/flow/:id/order: create (or reuse) the order
// and open a checkout. The checkout session and URL go back to the
// client so it can send the user to the gateway page.
func (h *FlowHandler) Order(c echo.Context) error {
	s := h.get(c.Param("id"))
	if s == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flow not found"})
	}

	if err := s.controller.BeginPayment(c.Request().Context()); err != nil {
		switch err {
		case flow.ErrAttemptBusy:
			return c.JSON(http.StatusConflict, echo.Map{"error": "payment already in progress"})
		case flow.ErrBadStep:
			return c.JSON(http.StatusConflict, echo.Map{"error": "identity not confirmed yet"})
		default:
			// retryable: the attempt is still in AwaitingPayment
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "order creation failed, try again"})
		}
	}

	resp := echo.Map{"view": viewOf(c.Param("id"), s.controller.Snapshot())}
	if gw := s.adapter.lastSession(); gw != nil {
		resp["checkout"] = echo.Map{"session_id": gw.ID, "url": gw.URL}
	}
	return c.JSON(http.StatusOK, resp)
}

// Payment handles POST /v1/flow/:id/payment, the gateway's callback. It
// resolves the named checkout session; the controller then verifies a
// success with the backend before anything is shown as booked.
func (h *FlowHandler) Payment(c echo.Context) error {
	s := h.get(c.Param("id"))
	if s == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flow not found"})
	}
	var req paymentCallbackReq
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id required"})
	}

	var err error
	switch req.Status {
	case "success":
		if req.Proof == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "proof required for success"})
		}
		err = h.Hosted.Succeed(req.SessionID, gateway.Proof{
			OrderRef:   req.Proof.OrderRef,
			PaymentRef: req.Proof.PaymentRef,
			Signature:  req.Proof.Signature,
		})
	case "cancel":
		err = h.Hosted.Cancel(req.SessionID)
	case "error":
		err = h.Hosted.Fail(req.SessionID, echo.NewHTTPError(http.StatusBadGateway, req.Error))
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be success, cancel or error"})
	}
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "checkout session not found"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
}

// Retry handles POST /v1/flow/:id/retry after a gateway failure. The
// controller reuses the existing order reference.
func (h *FlowHandler) Retry(c echo.Context) error {
	s := h.get(c.Param("id"))
	if s == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flow not found"})
	}
	if err := s.controller.Retry(c.Request().Context()); err != nil {
		switch err {
		case flow.ErrNoRetry:
			return c.JSON(http.StatusConflict, echo.Map{"error": "this failure cannot be retried; contact support or start over"})
		case flow.ErrBadStep:
			return c.JSON(http.StatusConflict, echo.Map{"error": "attempt is not in a failed state"})
		default:
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "retry failed, try again"})
		}
	}

	resp := echo.Map{"view": viewOf(c.Param("id"), s.controller.Snapshot())}
	if gw := s.adapter.lastSession(); gw != nil {
		resp["checkout"] = echo.Map{"session_id": gw.ID, "url": gw.URL}
	}
	return c.JSON(http.StatusOK, resp)
}

// Restart handles POST /v1/flow/:id/restart: a fresh attempt for the
// same library after a terminal failure.
func (h *FlowHandler) Restart(c echo.Context) error {
	s := h.get(c.Param("id"))
	if s == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "flow not found"})
	}
	if err := s.controller.StartOver(); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "attempt is not finished"})
	}
	return c.JSON(http.StatusOK, viewOf(c.Param("id"), s.controller.Snapshot()))
}
