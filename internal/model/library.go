package model

import "time"

// Library represents a study library that sells monthly seat
// subscriptions. Capacity is derived from the seat grid
// (SeatRows × SeatsPerRow); individual seats are not stored as
// rows because a seat only comes into existence when a paid
// booking assigns it.
//
// Fields:
//  ID              – primary key identifier.
//  Name            – human-friendly library name.
//  City            – city the library operates in.
//  Address         – street address shown to customers.
//  SeatRows        – number of seat rows (labelled A, B, C, ...).
//  SeatsPerRow     – seats in each row.
//  MonthlyFeeCents – subscription price in cents for one seat.
//  IsActive        – whether the library currently accepts bookings.
type Library struct {
	ID              uint64    // libraries.id
	Name            string    // libraries.name
	City            string    // libraries.city
	Address         string    // libraries.address
	SeatRows        uint32    // libraries.seat_rows
	SeatsPerRow     uint32    // libraries.seats_per_row
	MonthlyFeeCents uint32    // libraries.monthly_fee_cents
	IsActive        bool      // libraries.is_active
	CreatedAt       time.Time // libraries.created_at
	UpdatedAt       time.Time // libraries.updated_at
}

// Capacity returns the total number of seats the library can sell.
func (l *Library) Capacity() uint32 {
	return l.SeatRows * l.SeatsPerRow
}
