package gateway

// Stub is an Adapter whose outcomes are scripted. Useful in tests and in
// dev environments without gateway credentials.
type Stub struct {
	Secret     string // secret used to sign the scripted proof
	PaymentRef string // payment ref the scripted proof carries
	Cancelled  bool   // report the checkout as cancelled
	Err        error  // report a gateway error
	OpenErr    error  // fail Open itself

	Opened []Params // every Params passed to Open, in order
}

// Open records the params and immediately resolves with the scripted
// outcome.
func (s *Stub) Open(p Params) (<-chan Outcome, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.Opened = append(s.Opened, p)
	ch := make(chan Outcome, 1)
	switch {
	case s.Err != nil:
		ch <- Outcome{Err: s.Err}
	case s.Cancelled:
		ch <- Outcome{Cancelled: true}
	default:
		ch <- Outcome{Proof: &Proof{
			OrderRef:   p.OrderRef,
			PaymentRef: s.PaymentRef,
			Signature:  SignProof(s.Secret, p.OrderRef, s.PaymentRef),
		}}
	}
	close(ch)
	return ch, nil
}
