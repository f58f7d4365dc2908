package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyProof(t *testing.T) {
	p := Proof{
		OrderRef:   "ord-123",
		PaymentRef: "pay-456",
	}
	p.Signature = SignProof("topsecret", p.OrderRef, p.PaymentRef)

	assert.True(t, VerifyProof("topsecret", p))
	assert.False(t, VerifyProof("wrongsecret", p))

	tampered := p
	tampered.PaymentRef = "pay-999"
	assert.False(t, VerifyProof("topsecret", tampered))
}

func TestHostedResolvesSessionOnce(t *testing.T) {
	h := NewHosted("https://checkout.example.com/pay")

	ch, sess, err := h.OpenSession(Params{KeyID: "pk_test", OrderRef: "ord-1", AmountCents: 4500})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Contains(t, sess.URL, "order=ord-1")

	proof := Proof{OrderRef: "ord-1", PaymentRef: "pay-1", Signature: "sig"}
	require.NoError(t, h.Succeed(sess.ID, proof))

	out := <-ch
	require.NotNil(t, out.Proof)
	assert.Equal(t, "pay-1", out.Proof.PaymentRef)

	// second resolve of the same session fails
	assert.ErrorIs(t, h.Succeed(sess.ID, proof), ErrSessionNotFound)
}

func TestHostedSupersedesAbandonedCheckout(t *testing.T) {
	h := NewHosted("https://checkout.example.com/pay")

	ch1, s1, err := h.OpenSession(Params{OrderRef: "ord-1"})
	require.NoError(t, err)

	// the payer closed the first checkout page without triggering any
	// callback; opening again for the same order must not be blocked by it
	ch2, s2, err := h.OpenSession(Params{OrderRef: "ord-1"})
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)

	out := <-ch1
	assert.True(t, out.Cancelled, "superseded session resolves as cancelled")

	// the old session is gone; the new one resolves normally
	assert.ErrorIs(t, h.Cancel(s1.ID), ErrSessionNotFound)
	proof := Proof{OrderRef: "ord-1", PaymentRef: "pay-2", Signature: "sig"}
	require.NoError(t, h.Succeed(s2.ID, proof))
	out = <-ch2
	require.NotNil(t, out.Proof)
	assert.Equal(t, "pay-2", out.Proof.PaymentRef)
}

func TestHostedCancelAndFail(t *testing.T) {
	h := NewHosted("https://checkout.example.com/pay")

	ch1, s1, err := h.OpenSession(Params{OrderRef: "ord-1"})
	require.NoError(t, err)
	require.NoError(t, h.Cancel(s1.ID))
	out := <-ch1
	assert.True(t, out.Cancelled)
	assert.Nil(t, out.Proof)

	ch2, s2, err := h.OpenSession(Params{OrderRef: "ord-2"})
	require.NoError(t, err)
	gwErr := errors.New("card network down")
	require.NoError(t, h.Fail(s2.ID, gwErr))
	out = <-ch2
	assert.Equal(t, gwErr, out.Err)
}

func TestStubSignsValidProof(t *testing.T) {
	s := &Stub{Secret: "topsecret", PaymentRef: "pay-9"}

	ch, err := s.Open(Params{OrderRef: "ord-9", AmountCents: 1000})
	require.NoError(t, err)

	select {
	case out := <-ch:
		require.NotNil(t, out.Proof)
		assert.True(t, VerifyProof("topsecret", *out.Proof))
		assert.Equal(t, "ord-9", out.Proof.OrderRef)
	case <-time.After(time.Second):
		t.Fatal("stub did not resolve")
	}

	require.Len(t, s.Opened, 1)
	assert.Equal(t, uint32(1000), s.Opened[0].AmountCents)
}
