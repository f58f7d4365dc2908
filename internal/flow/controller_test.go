package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-seat-booking/internal/gateway"
)

type stubResolver struct {
	exists bool
	err    error
	calls  int
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (bool, error) {
	s.calls++
	return s.exists, s.err
}

type stubInitiator struct {
	mu     sync.Mutex
	params OrderParams
	err    error
	calls  int
}

func (s *stubInitiator) CreateOrder(_ context.Context, _ string, _ uint64) (OrderParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return OrderParams{}, s.err
	}
	return s.params, nil
}

func (s *stubInitiator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubVerifier struct {
	mu       sync.Mutex
	res      VerifyResult
	err      error
	calls    int
	gotProof gateway.Proof
	gotCtx   context.Context
}

func (s *stubVerifier) Verify(ctx context.Context, proof gateway.Proof, _ string) (VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.gotProof = proof
	s.gotCtx = ctx
	return s.res, s.err
}

// manualGateway keeps each opened session's channel so a test can decide
// the outcome itself.
type manualGateway struct {
	mu    sync.Mutex
	opens []gateway.Params
	chans []chan gateway.Outcome
}

func (m *manualGateway) Open(p gateway.Params) (<-chan gateway.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan gateway.Outcome, 1)
	m.opens = append(m.opens, p)
	m.chans = append(m.chans, ch)
	return ch, nil
}

func (m *manualGateway) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opens)
}

func (m *manualGateway) session(i int) chan gateway.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chans[i]
}

// waitStep drains snapshots until the wanted step shows up.
func waitStep(t *testing.T, ch <-chan Attempt, want Step) Attempt {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case a := <-ch:
			if a.Step == want {
				return a
			}
		case <-deadline:
			t.Fatalf("timed out waiting for step %s", want)
		}
	}
}

func newTestController(t *testing.T, r Resolver, i Initiator, gw gateway.Adapter, v Verifier) (*Controller, chan Attempt) {
	t.Helper()
	updates := make(chan Attempt, 32)
	c := New(7, r, i, gw, v, func(a Attempt) { updates <- a })
	return c, updates
}

func okParams(orderRef string, amount uint32) OrderParams {
	return OrderParams{
		OrderRef:    orderRef,
		AmountCents: amount,
		Gateway:     gateway.Params{KeyID: "pk_test", OrderRef: orderRef, AmountCents: amount},
	}
}

func TestResolveIdentityRoutes(t *testing.T) {
	t.Run("existing account routes to login", func(t *testing.T) {
		c, _ := newTestController(t, &stubResolver{exists: true}, nil, nil, nil)
		route, err := c.ResolveIdentity(context.Background(), "a@b.test")
		require.NoError(t, err)
		assert.Equal(t, RouteLogin, route)
	})

	t.Run("unknown account routes to registration", func(t *testing.T) {
		c, _ := newTestController(t, &stubResolver{exists: false}, nil, nil, nil)
		route, err := c.ResolveIdentity(context.Background(), "a@b.test")
		require.NoError(t, err)
		assert.Equal(t, RouteRegister, route)
	})

	t.Run("resolver failure routes to login, never assumes registered", func(t *testing.T) {
		c, _ := newTestController(t, &stubResolver{err: errors.New("timeout")}, nil, nil, nil)
		route, err := c.ResolveIdentity(context.Background(), "a@b.test")
		require.NoError(t, err)
		assert.Equal(t, RouteLogin, route)
	})
}

func TestIdentityIsImmutable(t *testing.T) {
	c, _ := newTestController(t, &stubResolver{}, nil, nil, nil)
	require.NoError(t, c.ConfirmIdentity("a@b.test"))
	assert.ErrorIs(t, c.ConfirmIdentity("other@b.test"), ErrIdentitySet)
	assert.Equal(t, "a@b.test", c.Snapshot().Email)
}

func TestDoubleBeginPaymentCreatesOneOrder(t *testing.T) {
	init := &stubInitiator{params: okParams("O1", 4500)}
	gw := &manualGateway{}
	c, _ := newTestController(t, &stubResolver{}, init, gw, &stubVerifier{})
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	require.NoError(t, c.BeginPayment(context.Background()))
	assert.ErrorIs(t, c.BeginPayment(context.Background()), ErrAttemptBusy)

	assert.Equal(t, 1, init.callCount())
	assert.Equal(t, 1, gw.openCount())
	assert.Equal(t, "O1", c.Snapshot().OrderRef)
}

func TestNoSeatsFailsBeforeGateway(t *testing.T) {
	init := &stubInitiator{err: &TerminalError{Reason: "library is fully booked"}}
	gw := &manualGateway{}
	c, updates := newTestController(t, &stubResolver{}, init, gw, &stubVerifier{})
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	require.NoError(t, c.BeginPayment(context.Background()))
	a := waitStep(t, updates, StepFailed)

	assert.Equal(t, FailureTerminal, a.FailureKind)
	assert.Equal(t, "library is fully booked", a.FailureReason)
	assert.Empty(t, a.OrderRef)
	assert.Zero(t, gw.openCount(), "gateway must never open for a terminal order failure")
	assert.ErrorIs(t, c.Retry(context.Background()), ErrNoRetry)
}

func TestRetryableOrderErrorStaysInAwaitingPayment(t *testing.T) {
	init := &stubInitiator{err: errors.New("connection reset")}
	gw := &manualGateway{}
	c, _ := newTestController(t, &stubResolver{}, init, gw, &stubVerifier{})
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	err := c.BeginPayment(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepAwaitingPayment, c.Snapshot().Step)

	// not a failure state, so Retry has nothing to act on
	assert.ErrorIs(t, c.Retry(context.Background()), ErrBadStep)

	// the same call can simply be made again
	init.mu.Lock()
	init.err = nil
	init.params = okParams("O1", 4500)
	init.mu.Unlock()
	require.NoError(t, c.BeginPayment(context.Background()))
	assert.Equal(t, "O1", c.Snapshot().OrderRef)
}

func TestCancelThenRetryReusesOrderReference(t *testing.T) {
	init := &stubInitiator{params: okParams("O1", 4500)}
	gw := &manualGateway{}
	c, updates := newTestController(t, &stubResolver{}, init, gw, &stubVerifier{})
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	require.NoError(t, c.BeginPayment(context.Background()))
	gw.session(0) <- gateway.Outcome{Cancelled: true}

	a := waitStep(t, updates, StepFailed)
	assert.Equal(t, FailureGateway, a.FailureKind)
	assert.Equal(t, "user-cancelled", a.FailureReason)
	assert.Equal(t, "O1", a.OrderRef, "order survives a cancelled checkout")

	require.NoError(t, c.Retry(context.Background()))
	assert.Equal(t, 1, init.callCount(), "retry must not create a second order")
	require.Equal(t, 2, gw.openCount())
	assert.Equal(t, "O1", gw.opens[1].OrderRef)
}

func TestVerificationFailureIsTerminalWithSupportReason(t *testing.T) {
	init := &stubInitiator{params: okParams("O1", 4500)}
	gw := &manualGateway{}
	ver := &stubVerifier{res: VerifyResult{Confirmed: false}}
	c, updates := newTestController(t, &stubResolver{}, init, gw, ver)
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	require.NoError(t, c.BeginPayment(context.Background()))
	gw.session(0) <- gateway.Outcome{Proof: &gateway.Proof{
		OrderRef: "O1", PaymentRef: "P1", Signature: "bad",
	}}

	a := waitStep(t, updates, StepFailed)
	assert.Equal(t, FailureVerification, a.FailureKind)
	assert.Contains(t, a.FailureReason, "contact support")
	assert.ErrorIs(t, c.Retry(context.Background()), ErrNoRetry)

	// the proof reached the verifier untouched
	ver.mu.Lock()
	assert.Equal(t, "bad", ver.gotProof.Signature)
	assert.Equal(t, "P1", ver.gotProof.PaymentRef)
	ver.mu.Unlock()
}

func TestVerifierTransportErrorAlsoRoutesToSupport(t *testing.T) {
	init := &stubInitiator{params: okParams("O1", 4500)}
	gw := &manualGateway{}
	ver := &stubVerifier{err: errors.New("backend unreachable")}
	c, updates := newTestController(t, &stubResolver{}, init, gw, ver)
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	require.NoError(t, c.BeginPayment(context.Background()))
	gw.session(0) <- gateway.Outcome{Proof: &gateway.Proof{OrderRef: "O1", PaymentRef: "P1"}}

	a := waitStep(t, updates, StepFailed)
	assert.Equal(t, FailureVerification, a.FailureKind)
	assert.Contains(t, a.FailureReason, "contact support")
}

func TestSeatHiddenUntilSucceeded(t *testing.T) {
	init := &stubInitiator{params: okParams("O2", 350)}
	gw := &manualGateway{}
	ver := &stubVerifier{res: VerifyResult{
		Confirmed:  true,
		SeatLabel:  "A-12",
		ValidUntil: time.Now().Add(30 * 24 * time.Hour),
	}}
	c, updates := newTestController(t, &stubResolver{}, init, gw, ver)
	require.NoError(t, c.ConfirmIdentity("a@b.test"))
	require.NoError(t, c.BeginPayment(context.Background()))

	assert.Empty(t, c.Snapshot().SeatLabel)

	gw.session(0) <- gateway.Outcome{Proof: &gateway.Proof{OrderRef: "O2", PaymentRef: "P2"}}
	verifying := waitStep(t, updates, StepVerifying)
	assert.Empty(t, verifying.SeatLabel, "no seat may show before verification confirms")

	done := waitStep(t, updates, StepSucceeded)
	assert.Equal(t, "A-12", done.SeatLabel)
}

func TestHappyPath(t *testing.T) {
	res := &stubResolver{exists: false}
	init := &stubInitiator{params: okParams("O2", 350)}
	gw := &manualGateway{}
	ver := &stubVerifier{res: VerifyResult{
		Confirmed:  true,
		SeatLabel:  "A-12",
		ValidUntil: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}}
	c, updates := newTestController(t, res, init, gw, ver)

	route, err := c.ResolveIdentity(context.Background(), "new@user.test")
	require.NoError(t, err)
	assert.Equal(t, RouteRegister, route)

	// registration happens outside the flow; the caller confirms once
	// a session exists
	require.NoError(t, c.ConfirmIdentity("new@user.test"))
	require.NoError(t, c.BeginPayment(context.Background()))

	require.Equal(t, 1, gw.openCount())
	assert.Equal(t, uint32(350), gw.opens[0].AmountCents)

	gw.session(0) <- gateway.Outcome{Proof: &gateway.Proof{
		OrderRef: "O2", PaymentRef: "P9", Signature: "sig",
	}}

	a := waitStep(t, updates, StepSucceeded)
	assert.Equal(t, "A-12", a.SeatLabel)
	assert.Equal(t, "O2", a.OrderRef)
	assert.True(t, a.Terminal())
}

func TestVerificationSurvivesAbandonment(t *testing.T) {
	init := &stubInitiator{params: okParams("O1", 4500)}
	gw := &manualGateway{}
	ver := &stubVerifier{res: VerifyResult{Confirmed: true, SeatLabel: "B-3"}}
	c, updates := newTestController(t, &stubResolver{}, init, gw, ver)
	require.NoError(t, c.ConfirmIdentity("a@b.test"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.BeginPayment(ctx))

	// the user navigates away while the checkout is open
	cancel()
	gw.session(0) <- gateway.Outcome{Proof: &gateway.Proof{OrderRef: "O1", PaymentRef: "P1"}}

	waitStep(t, updates, StepSucceeded)
	ver.mu.Lock()
	require.NotNil(t, ver.gotCtx)
	assert.NoError(t, ver.gotCtx.Err(), "verification context must outlive the abandoned page")
	ver.mu.Unlock()
}

func TestStartOverResetsAttempt(t *testing.T) {
	init := &stubInitiator{err: &TerminalError{Reason: "library is fully booked"}}
	c, updates := newTestController(t, &stubResolver{}, init, &manualGateway{}, &stubVerifier{})
	require.NoError(t, c.ConfirmIdentity("a@b.test"))
	require.NoError(t, c.BeginPayment(context.Background()))
	waitStep(t, updates, StepFailed)

	require.NoError(t, c.StartOver())
	a := c.Snapshot()
	assert.Equal(t, StepCollectingIdentity, a.Step)
	assert.Empty(t, a.Email)
	assert.Empty(t, a.OrderRef)
	assert.Empty(t, string(a.FailureKind))
	assert.Equal(t, uint64(7), a.LibraryID)
}
