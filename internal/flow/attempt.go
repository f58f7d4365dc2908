package flow // package flow drives a booking attempt through identity, payment and verification

import "time"

// Step is the current position of a booking attempt in the flow.
type Step string

// Flow steps in order of progression. Succeeded and Failed are terminal.
const (
	StepCollectingIdentity Step = "COLLECTING_IDENTITY"
	StepAwaitingPayment    Step = "AWAITING_PAYMENT"
	StepVerifying          Step = "VERIFYING"
	StepSucceeded          Step = "SUCCEEDED"
	StepFailed             Step = "FAILED"
)

// FailureKind classifies a failed attempt. The kind decides which
// affordance the UI offers: retry, start over, or contact support.
type FailureKind string

const (
	// FailureTerminal covers pre-payment conditions that cannot improve
	// on retry, like a fully booked library. Start over only.
	FailureTerminal FailureKind = "TERMINAL"
	// FailureGateway covers payer cancellation and gateway declines.
	// Retry re-opens the gateway against the same order. Transient
	// order-creation errors never reach Failed at all: the attempt stays
	// in AwaitingPayment and BeginPayment is simply called again.
	FailureGateway FailureKind = "GATEWAY"
	// FailureVerification means the gateway claimed success but the
	// backend could not confirm the payment. Money may have moved, so
	// the only affordance is contacting support. Never retried.
	FailureVerification FailureKind = "VERIFICATION"
)

// Attempt is the client-held state of one pass through the booking flow.
// It is ephemeral: nothing here is persisted, and abandoning the flow
// discards it. Seat details are populated only once the attempt reaches
// Succeeded.
type Attempt struct {
	LibraryID uint64
	Email     string // immutable once set
	Step      Step
	OrderRef  string // set iff Step is AwaitingPayment, Verifying or Succeeded

	FailureKind   FailureKind // set only in Failed
	FailureReason string      // set only in Failed

	SeatLabel  string    // set only in Succeeded
	ValidUntil time.Time // set only in Succeeded
}

// Terminal reports whether the attempt has reached a final step.
func (a Attempt) Terminal() bool {
	return a.Step == StepSucceeded || a.Step == StepFailed
}

// IdentityRoute tells the UI which identity screen to show next.
type IdentityRoute string

const (
	RouteLogin    IdentityRoute = "LOGIN"
	RouteRegister IdentityRoute = "REGISTER"
)

// TerminalError marks an order creation failure that cannot succeed on
// retry within the same attempt.
type TerminalError struct {
	Reason string
}

func (e *TerminalError) Error() string { return e.Reason }
