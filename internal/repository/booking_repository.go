package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/library-seat-booking/internal/model"
)

// BookingRepo manages confirmed seat bookings. Bookings only come into
// existence inside the payment confirmation transaction; there is no
// pending or held state.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo with the given database handle.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// CountActiveTx returns the number of unexpired bookings in a library.
// Runs inside tx while the library row is locked so the count is stable
// for seat assignment.
func (r *BookingRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, libraryID uint64) (uint32, error) {
	var n uint32
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE library_id = ? AND valid_until > UTC_TIMESTAMP()`,
		libraryID,
	).Scan(&n)
	return n, err
}

// CountActive is CountActiveTx without a transaction, for the public
// availability endpoint where an approximate answer is fine.
func (r *BookingRepo) CountActive(ctx context.Context, libraryID uint64) (uint32, error) {
	var n uint32
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE library_id = ? AND valid_until > UTC_TIMESTAMP()`,
		libraryID,
	).Scan(&n)
	return n, err
}

// CreateTx inserts a booking row inside tx and returns it.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, orderID, userID, libraryID uint64, seatLabel string, validUntil time.Time) (*model.Booking, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (order_id, user_id, library_id, seat_label, valid_until)
		 VALUES (?, ?, ?, ?, ?)`,
		orderID, userID, libraryID, seatLabel, validUntil.UTC(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Booking{
		ID:         uint64(id),
		OrderID:    orderID,
		UserID:     userID,
		LibraryID:  libraryID,
		SeatLabel:  seatLabel,
		ValidUntil: validUntil.UTC(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GetByOrderID returns the booking created for an order, if any. Lets the
// verify endpoint answer idempotently for an already-paid order.
func (r *BookingRepo) GetByOrderID(ctx context.Context, orderID uint64) (*model.Booking, error) {
	b := &model.Booking{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, user_id, library_id, seat_label, valid_until, created_at
		   FROM bookings WHERE order_id = ?`,
		orderID,
	).Scan(&b.ID, &b.OrderID, &b.UserID, &b.LibraryID, &b.SeatLabel, &b.ValidUntil, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, user_id, library_id, seat_label, valid_until, created_at
		   FROM bookings WHERE user_id = ? ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.OrderID, &b.UserID, &b.LibraryID, &b.SeatLabel, &b.ValidUntil, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SeatLabel converts an occupancy index into a seat label. Index 0 in a
// library with 10 seats per row is "A-1", index 10 is "B-1".
func SeatLabel(index, seatsPerRow uint32) string {
	row := rune('A' + index/seatsPerRow)
	return fmt.Sprintf("%c-%d", row, index%seatsPerRow+1)
}
