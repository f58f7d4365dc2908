package gateway // package gateway adapts the third-party hosted payment checkout

import (
	"crypto/hmac"   // HMAC for proof signatures
	"crypto/sha256" // SHA-256 as the HMAC hash
	"encoding/hex"  // hex encoding of signatures
)

// Params describes one checkout the gateway should run. AmountCents and
// OrderRef come from the backend-created order; the gateway never decides
// what to charge.
type Params struct {
	KeyID       string // public key id identifying the merchant account
	OrderRef    string // backend order reference, echoed back in the proof
	AmountCents uint32 // amount to charge
	Email       string // prefilled payer email
	Description string // line shown on the checkout page
}

// Proof is what the gateway hands the client after a checkout the gateway
// considers successful. It is a claim, not a confirmation: the signature
// lets the backend check that the proof came from the gateway, and only
// the backend's own verification turns the claim into a paid order.
type Proof struct {
	OrderRef   string `json:"order_ref"`   // order the payment was for
	PaymentRef string `json:"payment_ref"` // gateway's own transaction id
	Signature  string `json:"signature"`   // hex HMAC over order_ref|payment_ref
}

// Outcome is the client-visible result of a checkout attempt.
type Outcome struct {
	Proof     *Proof // set when the gateway reported success
	Cancelled bool   // the payer closed the checkout
	Err       error  // transport or gateway error
}

// Adapter opens a hosted checkout and reports how it ended. Opening the
// checkout is fire-and-forget from the flow's point of view; the outcome
// arrives on the returned channel exactly once.
type Adapter interface {
	Open(p Params) (<-chan Outcome, error)
}

// SignProof computes the hex HMAC-SHA256 signature over
// orderRef|paymentRef with the shared gateway secret.
func SignProof(secret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyProof checks a proof's signature in constant time.
func VerifyProof(secret string, p Proof) bool {
	want := SignProof(secret, p.OrderRef, p.PaymentRef)
	return hmac.Equal([]byte(want), []byte(p.Signature))
}
