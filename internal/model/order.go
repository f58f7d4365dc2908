package model

import "time"

// Order statuses. An order is born CREATED and makes exactly one
// transition: to PAID when the backend confirms the payment proof,
// or to FAILED when verification rejects it or the order expires
// unpaid. The CREATED→PAID transition is the sole trigger for seat
// assignment.
const (
	OrderStatusCreated = "CREATED"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"
)

// Order is the backend-owned record of an intended charge. It is
// created before any money moves and outlives the client's booking
// attempt. At most one CREATED, unexpired order exists per
// (user, library) pair; repeated creation requests return the
// existing row instead of opening a duplicate charge.
//
// Fields:
//  ID          – primary key identifier.
//  OrderRef    – opaque reference handed to the client and gateway.
//  UserID      – user the charge is for.
//  LibraryID   – library whose seat is being bought.
//  AmountCents – amount due in cents, fixed at creation time.
//  Status      – CREATED, PAID or FAILED.
//  ExpiresAt   – when an unpaid order stops blocking re-creation.
type Order struct {
	ID          uint64    // orders.id
	OrderRef    string    // orders.order_ref
	UserID      uint64    // orders.user_id
	LibraryID   uint64    // orders.library_id
	AmountCents uint32    // orders.amount_cents
	Status      string    // orders.status
	ExpiresAt   time.Time // orders.expires_at
	CreatedAt   time.Time // orders.created_at
	UpdatedAt   time.Time // orders.updated_at
}
