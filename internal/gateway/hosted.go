package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a callback names an unknown
// checkout session.
var ErrSessionNotFound = errors.New("gateway: checkout session not found")

// Session is one registered checkout awaiting its callback.
type Session struct {
	ID       string // random session id embedded in the redirect URL
	OrderRef string // order this checkout pays for
	URL      string // hosted page the payer should be sent to
}

// Hosted drives the real hosted checkout. Open registers a session and
// returns its outcome channel; the HTTP layer resolves the session later,
// when the gateway's redirect callback lands, via Succeed, Cancel or Fail.
// At most one session is live per order reference: opening a checkout for
// an order that already has one resolves the old session as cancelled and
// registers the new one. A payer who closed the old checkout page without
// ever triggering a callback is exactly that case, so whoever waits on the
// superseded session sees a user cancellation instead of hanging forever.
type Hosted struct {
	checkoutURL string

	mu        sync.Mutex
	byID      map[string]chan Outcome
	orderOfID map[string]string
	idOfOrder map[string]string
}

// NewHosted builds a Hosted adapter pointing at the gateway checkout URL.
func NewHosted(checkoutURL string) *Hosted {
	return &Hosted{
		checkoutURL: checkoutURL,
		byID:        make(map[string]chan Outcome),
		orderOfID:   make(map[string]string),
		idOfOrder:   make(map[string]string),
	}
}

// Open registers a checkout session for the order in p. The returned
// channel receives the outcome exactly once, when a callback resolves the
// session. Use OpenSession when the caller also needs the session id.
func (h *Hosted) Open(p Params) (<-chan Outcome, error) {
	ch, _, err := h.OpenSession(p)
	return ch, err
}

// OpenSession registers a checkout session and returns both the outcome
// channel and the session metadata the HTTP layer hands to the client.
func (h *Hosted) OpenSession(p Params) (<-chan Outcome, *Session, error) {
	if p.OrderRef == "" {
		return nil, nil, errors.New("gateway: order reference required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if oldID, live := h.idOfOrder[p.OrderRef]; live {
		h.dropLocked(oldID, Outcome{Cancelled: true})
	}
	id := uuid.NewString()
	ch := make(chan Outcome, 1)
	h.byID[id] = ch
	h.orderOfID[id] = p.OrderRef
	h.idOfOrder[p.OrderRef] = id
	s := &Session{
		ID:       id,
		OrderRef: p.OrderRef,
		URL: fmt.Sprintf("%s?session=%s&key=%s&amount=%d&order=%s",
			h.checkoutURL, id, p.KeyID, p.AmountCents, p.OrderRef),
	}
	return ch, s, nil
}

// Succeed resolves a session with a successful proof.
func (h *Hosted) Succeed(sessionID string, proof Proof) error {
	return h.resolve(sessionID, Outcome{Proof: &proof})
}

// Cancel resolves a session as cancelled by the payer.
func (h *Hosted) Cancel(sessionID string) error {
	return h.resolve(sessionID, Outcome{Cancelled: true})
}

// Fail resolves a session with a gateway error.
func (h *Hosted) Fail(sessionID string, err error) error {
	return h.resolve(sessionID, Outcome{Err: err})
}

func (h *Hosted) resolve(sessionID string, out Outcome) error {
	h.mu.Lock()
	_, ok := h.byID[sessionID]
	if ok {
		h.dropLocked(sessionID, out)
	}
	h.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// dropLocked unregisters the session and delivers its outcome. The
// channel is buffered, so sending under the lock cannot block.
func (h *Hosted) dropLocked(sessionID string, out Outcome) {
	ch := h.byID[sessionID]
	delete(h.byID, sessionID)
	delete(h.idOfOrder, h.orderOfID[sessionID])
	delete(h.orderOfID, sessionID)
	ch <- out
	close(ch)
}
