package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/library-seat-booking/internal/gateway"
)

// SupportReason is shown whenever verification does not confirm a
// payment. The wording matters: the payer may already have been charged,
// so the flow must steer them to support instead of a second charge.
const SupportReason = "we could not verify your payment; please contact support before paying again"

var (
	// ErrAttemptBusy is returned when an action is invoked while a
	// previous one is still in flight.
	ErrAttemptBusy = errors.New("flow: another action is in flight")
	// ErrBadStep is returned when an action is invoked in a step that
	// does not allow it.
	ErrBadStep = errors.New("flow: action not allowed in current step")
	// ErrIdentitySet is returned when ConfirmIdentity is called on an
	// attempt that already has an email. Identity is immutable per
	// attempt; rebinding could attach the payment to the wrong account.
	ErrIdentitySet = errors.New("flow: identity already bound to attempt")
	// ErrNoRetry is returned when Retry is called on a failure kind
	// that must not be retried.
	ErrNoRetry = errors.New("flow: failure is not retryable")
)

// Resolver answers whether an account exists for an email.
type Resolver interface {
	Resolve(ctx context.Context, email string) (exists bool, err error)
}

// OrderParams is what the initiator returns: the order reference plus
// everything the gateway needs to run a checkout.
type OrderParams struct {
	OrderRef    string
	AmountCents uint32
	Gateway     gateway.Params
}

// Initiator asks the backend to create (or return the existing) pending
// order for a user and library. Errors wrapping *TerminalError end the
// attempt; anything else is retryable.
type Initiator interface {
	CreateOrder(ctx context.Context, email string, libraryID uint64) (OrderParams, error)
}

// VerifyResult is the backend's verdict on a payment proof.
type VerifyResult struct {
	Confirmed  bool
	SeatLabel  string
	ValidUntil time.Time
}

// Verifier submits a proof to the backend for confirmation. The proof is
// passed through exactly as the gateway produced it; the backend is the
// only party that can judge its authenticity.
type Verifier interface {
	Verify(ctx context.Context, proof gateway.Proof, email string) (VerifyResult, error)
}

// Controller sequences one booking attempt. All methods are safe for
// concurrent use; a single in-flight guard serializes the actions so a
// double click cannot issue two order requests.
//
// The zero value is not usable; construct with New.
type Controller struct {
	resolver Resolver
	initiat  Initiator
	gw       gateway.Adapter
	verifier Verifier

	// onChange, when set, receives a snapshot after every transition.
	// Called without the lock held.
	onChange func(Attempt)

	mu       sync.Mutex
	attempt  Attempt
	gwParams gateway.Params
	inFlight bool
	opCtx    context.Context
}

// New starts a fresh attempt for a library in CollectingIdentity.
func New(libraryID uint64, r Resolver, i Initiator, gw gateway.Adapter, v Verifier, onChange func(Attempt)) *Controller {
	return &Controller{
		resolver: r,
		initiat:  i,
		gw:       gw,
		verifier: v,
		onChange: onChange,
		attempt: Attempt{
			LibraryID: libraryID,
			Step:      StepCollectingIdentity,
		},
	}
}

// Snapshot returns a copy of the attempt for rendering. Seat details are
// stripped unless the attempt has succeeded, so no intermediate state can
// show a seat that is not confirmed.
func (c *Controller) Snapshot() Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Attempt {
	a := c.attempt
	if a.Step != StepSucceeded {
		a.SeatLabel = ""
		a.ValidUntil = time.Time{}
	}
	return a
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.mu.Lock()
	a := c.snapshotLocked()
	c.mu.Unlock()
	c.onChange(a)
}

// ResolveIdentity asks the resolver which identity screen the email
// should route to. Any resolver error fails closed toward login: an
// unreachable resolver must never let the flow assume the user is
// registered, and login is the branch that forces real authentication.
func (c *Controller) ResolveIdentity(ctx context.Context, email string) (IdentityRoute, error) {
	c.mu.Lock()
	if c.attempt.Step != StepCollectingIdentity {
		c.mu.Unlock()
		return RouteLogin, ErrBadStep
	}
	c.mu.Unlock()

	exists, err := c.resolver.Resolve(ctx, email)
	if err != nil || exists {
		return RouteLogin, nil
	}
	return RouteRegister, nil
}

// ConfirmIdentity binds the authenticated email to the attempt and moves
// it to AwaitingPayment. Authentication itself happens outside the flow;
// the caller invokes this once it holds a session for the email.
func (c *Controller) ConfirmIdentity(email string) error {
	c.mu.Lock()
	if c.attempt.Email != "" {
		c.mu.Unlock()
		return ErrIdentitySet
	}
	if c.attempt.Step != StepCollectingIdentity {
		c.mu.Unlock()
		return ErrBadStep
	}
	c.attempt.Email = email
	c.attempt.Step = StepAwaitingPayment
	c.mu.Unlock()
	c.notify()
	return nil
}

// BeginPayment creates the order if the attempt does not have one yet and
// opens the gateway checkout. The method returns once the checkout is
// open; the outcome arrives asynchronously and moves the attempt on.
//
// A retryable initiator error leaves the attempt in AwaitingPayment and
// is returned to the caller; the same call may simply be made again. The
// backend treats repeated creation for the same user and library as
// idempotent, so a retry after an ambiguous network failure cannot open
// a duplicate charge.
func (c *Controller) BeginPayment(ctx context.Context) error {
	c.mu.Lock()
	if c.attempt.Step != StepAwaitingPayment {
		c.mu.Unlock()
		return ErrBadStep
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrAttemptBusy
	}
	c.inFlight = true
	c.opCtx = ctx
	email := c.attempt.Email
	libraryID := c.attempt.LibraryID
	orderRef := c.attempt.OrderRef
	params := c.gwParams
	c.mu.Unlock()

	if orderRef == "" {
		op, err := c.initiat.CreateOrder(ctx, email, libraryID)
		if err != nil {
			var term *TerminalError
			if errors.As(err, &term) {
				c.fail(FailureTerminal, term.Reason)
				return nil
			}
			c.mu.Lock()
			c.inFlight = false
			c.mu.Unlock()
			return err
		}
		c.mu.Lock()
		c.attempt.OrderRef = op.OrderRef
		c.gwParams = op.Gateway
		params = op.Gateway
		c.mu.Unlock()
		c.notify()
	}

	ch, err := c.gw.Open(params)
	if err != nil {
		c.fail(FailureGateway, "could not open payment page: "+err.Error())
		return nil
	}
	go c.awaitGateway(ch)
	return nil
}

// Retry re-runs the payment step after a gateway failure. The attempt
// keeps its order reference, so the gateway reopens against the same
// order instead of creating a second charge. Terminal and verification
// failures refuse to retry; transient order-creation errors never enter
// Failed, so gateway failures are the only retryable kind.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.attempt.Step != StepFailed {
		c.mu.Unlock()
		return ErrBadStep
	}
	if c.attempt.FailureKind != FailureGateway {
		c.mu.Unlock()
		return ErrNoRetry
	}
	c.attempt.Step = StepAwaitingPayment
	c.attempt.FailureKind = ""
	c.attempt.FailureReason = ""
	c.mu.Unlock()
	c.notify()
	return c.BeginPayment(ctx)
}

// StartOver discards the attempt and begins a new one for the same
// library, back in CollectingIdentity with no identity or order bound.
// This is the only way forward after a terminal or verification failure.
func (c *Controller) StartOver() error {
	c.mu.Lock()
	if !c.attempt.Terminal() {
		c.mu.Unlock()
		return ErrBadStep
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrAttemptBusy
	}
	c.attempt = Attempt{
		LibraryID: c.attempt.LibraryID,
		Step:      StepCollectingIdentity,
	}
	c.gwParams = gateway.Params{}
	c.mu.Unlock()
	c.notify()
	return nil
}

// awaitGateway consumes the checkout outcome. Exactly one outcome
// arrives per opened session.
func (c *Controller) awaitGateway(ch <-chan gateway.Outcome) {
	out := <-ch
	switch {
	case out.Proof != nil:
		c.verify(*out.Proof)
	case out.Cancelled:
		c.fail(FailureGateway, "user-cancelled")
	case out.Err != nil:
		c.fail(FailureGateway, out.Err.Error())
	default:
		c.fail(FailureGateway, "payment gateway reported no outcome")
	}
}

// verify submits the proof to the backend and settles the attempt. The
// verification call deliberately survives cancellation of the context
// that started the payment: the user may have navigated away, but the
// backend's verdict is the only source of truth on whether they now own
// a paid booking, so the request must be allowed to resolve.
func (c *Controller) verify(proof gateway.Proof) {
	c.mu.Lock()
	c.attempt.Step = StepVerifying
	email := c.attempt.Email
	base := c.opCtx
	c.mu.Unlock()
	c.notify()

	if base == nil {
		base = context.Background()
	}
	res, err := c.verifier.Verify(context.WithoutCancel(base), proof, email)
	if err != nil || !res.Confirmed {
		// The gateway said success but the backend did not confirm.
		// This is never retried on the same path: the payer may have
		// been charged, and a retry could charge them again.
		c.fail(FailureVerification, SupportReason)
		return
	}

	c.mu.Lock()
	c.attempt.Step = StepSucceeded
	c.attempt.SeatLabel = res.SeatLabel
	c.attempt.ValidUntil = res.ValidUntil
	c.inFlight = false
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) fail(kind FailureKind, reason string) {
	c.mu.Lock()
	c.attempt.Step = StepFailed
	c.attempt.FailureKind = kind
	c.attempt.FailureReason = reason
	c.inFlight = false
	c.mu.Unlock()
	c.notify()
}
