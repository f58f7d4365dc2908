// Package queue defines message payloads exchanged over the message broker
// and the background consumer that processes them.
package queue

// OrderPaidEvent is published inside the request that confirms a payment,
// after the order moved to PAID and the seat was assigned. It carries
// enough for downstream consumers (receipts, notifications, analytics)
// without querying the primary database.
type OrderPaidEvent struct {
	OrderID     uint64 `json:"order_id"`
	OrderRef    string `json:"order_ref"`
	PaymentRef  string `json:"payment_ref"`
	UserID      uint64 `json:"user_id"`
	UserEmail   string `json:"user_email"`
	LibraryID   uint64 `json:"library_id"`
	LibraryName string `json:"library_name"`
	SeatLabel   string `json:"seat_label"`
	AmountCents uint32 `json:"amount_cents"`
	ValidUntil  string `json:"valid_until"`
	PaidAt      string `json:"paid_at"`
}
