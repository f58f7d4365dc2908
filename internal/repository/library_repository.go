package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/library-seat-booking/internal/model"
)

// LibraryRepo reads study libraries. Libraries are managed out of band
// (seed data / admin tooling), so the repo only exposes reads plus the
// row lock the order path needs.
type LibraryRepo struct {
	db *sql.DB
}

// NewLibraryRepo constructs a LibraryRepo with the given database handle.
func NewLibraryRepo(db *sql.DB) *LibraryRepo {
	return &LibraryRepo{db: db}
}

// ListActive returns all active libraries ordered by city then name.
func (r *LibraryRepo) ListActive(ctx context.Context) ([]model.Library, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, city, address, seat_rows, seats_per_row, monthly_fee_cents, is_active, created_at, updated_at
		   FROM libraries WHERE is_active = 1 ORDER BY city, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Library
	for rows.Next() {
		var l model.Library
		if err := rows.Scan(&l.ID, &l.Name, &l.City, &l.Address, &l.SeatRows, &l.SeatsPerRow,
			&l.MonthlyFeeCents, &l.IsActive, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetByID fetches a single library. Returns ErrNotFound when the id is
// unknown.
func (r *LibraryRepo) GetByID(ctx context.Context, id uint64) (*model.Library, error) {
	l := &model.Library{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, city, address, seat_rows, seats_per_row, monthly_fee_cents, is_active, created_at, updated_at
		   FROM libraries WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.City, &l.Address, &l.SeatRows, &l.SeatsPerRow,
		&l.MonthlyFeeCents, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// LockByIDTx loads a library row FOR UPDATE inside tx. The order path
// locks the library so concurrent order creation and payment confirmation
// for the same library serialize on this row.
func (r *LibraryRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Library, error) {
	l := &model.Library{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, city, address, seat_rows, seats_per_row, monthly_fee_cents, is_active, created_at, updated_at
		   FROM libraries WHERE id = ? FOR UPDATE`, id,
	).Scan(&l.ID, &l.Name, &l.City, &l.Address, &l.SeatRows, &l.SeatsPerRow,
		&l.MonthlyFeeCents, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !l.IsActive {
		return nil, ErrLibraryClosed
	}
	return l, nil
}
