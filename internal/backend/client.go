package backend // package backend is the HTTP client for the backend-of-record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/iliyamo/library-seat-booking/internal/flow"
	"github.com/iliyamo/library-seat-booking/internal/gateway"
)

// Client talks to the three booking endpoints the flow depends on. It
// implements flow.Resolver, flow.Initiator and flow.Verifier.
type Client struct {
	baseURL string
	token   string // bearer token for the authenticated endpoints
	http    *http.Client
}

// New builds a Client for the given base URL. The token authenticates
// order creation and verification; the identity check is public.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken swaps the bearer token, e.g. after the user authenticates
// mid-flow.
func (c *Client) SetToken(token string) { c.token = token }

// Resolve reports whether an account exists for the email. Errors are
// returned as-is; the flow fails closed toward login on any error.
func (c *Client) Resolve(ctx context.Context, email string) (bool, error) {
	u := fmt.Sprintf("%s/v1/users/exists?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

type createOrderRequest struct {
	UserEmail string `json:"userEmail"`
	LibraryID uint64 `json:"libraryId"`
}

type createOrderResponse struct {
	OrderReference string `json:"orderReference"`
	AmountDue      uint32 `json:"amountDue"`
	GatewayParams  struct {
		KeyID       string `json:"keyId"`
		Description string `json:"description"`
	} `json:"gatewayParams"`
}

// CreateOrder asks the backend for a pending order. The backend is the
// idempotency authority: repeating the call for the same user and
// library while an unpaid order exists returns that order, so the
// caller may retry after an ambiguous network failure.
//
// A 409 means the library has no seats left; that is surfaced as a
// *flow.TerminalError since no amount of retrying frees a seat for this
// attempt. Everything else is retryable.
func (c *Client) CreateOrder(ctx context.Context, email string, libraryID uint64) (flow.OrderParams, error) {
	body, err := json.Marshal(createOrderRequest{UserEmail: email, LibraryID: libraryID})
	if err != nil {
		return flow.OrderParams{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return flow.OrderParams{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return flow.OrderParams{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return flow.OrderParams{}, &flow.TerminalError{Reason: apiError(resp, "library is fully booked")}
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return flow.OrderParams{}, &flow.TerminalError{Reason: apiError(resp, "library unavailable")}
	default:
		return flow.OrderParams{}, fmt.Errorf("create order: unexpected status %d", resp.StatusCode)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return flow.OrderParams{}, err
	}
	return flow.OrderParams{
		OrderRef:    out.OrderReference,
		AmountCents: out.AmountDue,
		Gateway: gateway.Params{
			KeyID:       out.GatewayParams.KeyID,
			OrderRef:    out.OrderReference,
			AmountCents: out.AmountDue,
			Email:       email,
			Description: out.GatewayParams.Description,
		},
	}, nil
}

type verifyRequest struct {
	OrderReference   string `json:"orderReference"`
	PaymentReference string `json:"paymentReference"`
	Signature        string `json:"signature"`
	UserEmail        string `json:"userEmail"`
}

type verifyResponse struct {
	Confirmed bool `json:"confirmed"`
	Booking   *struct {
		SeatNumber string    `json:"seatNumber"`
		ValidUntil time.Time `json:"validUntil"`
	} `json:"booking"`
}

// Verify submits the gateway's proof untouched and returns the backend's
// verdict. A clean response with confirmed=false is not an error: it is
// the backend saying the proof did not check out.
func (c *Client) Verify(ctx context.Context, proof gateway.Proof, email string) (flow.VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{
		OrderReference:   proof.OrderRef,
		PaymentReference: proof.PaymentRef,
		Signature:        proof.Signature,
		UserEmail:        email,
	})
	if err != nil {
		return flow.VerifyResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders/verify", bytes.NewReader(body))
	if err != nil {
		return flow.VerifyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out verifyResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return flow.VerifyResult{}, err
	}
	res := flow.VerifyResult{Confirmed: out.Confirmed}
	if out.Booking != nil {
		res.SeatLabel = out.Booking.SeatNumber
		res.ValidUntil = out.Booking.ValidUntil
	}
	return res, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError pulls the backend's {"error": "..."} message, falling back to
// a fixed reason when the body is not in that shape.
func apiError(resp *http.Response, fallback string) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fallback
	}
	return body.Error
}
