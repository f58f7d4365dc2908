package model

import "time"

// Booking is a confirmed seat subscription. A booking row is only
// ever created inside the transaction that moves its order from
// CREATED to PAID; seats are never held or pre-reserved for unpaid
// orders. The seat label is derived from the library's occupancy at
// the moment of payment confirmation.
//
// Fields:
//  ID         – primary key identifier.
//  OrderID    – order whose payment produced this booking.
//  UserID     – subscriber.
//  LibraryID  – library the seat belongs to.
//  SeatLabel  – assigned seat, e.g. "A-12".
//  ValidUntil – end of the subscription period.
type Booking struct {
	ID         uint64    // bookings.id
	OrderID    uint64    // bookings.order_id
	UserID     uint64    // bookings.user_id
	LibraryID  uint64    // bookings.library_id
	SeatLabel  string    // bookings.seat_label
	ValidUntil time.Time // bookings.valid_until
	CreatedAt  time.Time // bookings.created_at
}
