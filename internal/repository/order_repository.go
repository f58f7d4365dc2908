package repository // package repository provides data access operations for orders

import (
	"context"      // context for query cancellation and deadlines
	"database/sql" // SQL database access
	"time"         // expiry calculations

	"github.com/iliyamo/library-seat-booking/internal/model"
)

// OrderRepo manages the orders table. Orders are the backend-owned record
// of an intended charge: one is created before the gateway is ever shown,
// and the CREATED→PAID transition happens exactly once per order no matter
// how many verification requests race for it.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo constructs an OrderRepo with the given database handle.
func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// FindOpenTx returns the caller's CREATED, unexpired order for a library,
// if one exists. Runs inside tx while the library row is locked, so the
// check-then-insert in CreateTx cannot race with itself.
func (r *OrderRepo) FindOpenTx(ctx context.Context, tx *sql.Tx, userID, libraryID uint64) (*model.Order, error) {
	o := &model.Order{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, order_ref, user_id, library_id, amount_cents, status, expires_at, created_at, updated_at
		   FROM orders
		  WHERE user_id = ? AND library_id = ? AND status = 'CREATED' AND expires_at > UTC_TIMESTAMP()
		  ORDER BY id DESC LIMIT 1`,
		userID, libraryID,
	).Scan(&o.ID, &o.OrderRef, &o.UserID, &o.LibraryID, &o.AmountCents, &o.Status,
		&o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateTx inserts a new CREATED order inside tx and returns it. The
// caller must already hold the library row lock.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, orderRef string, userID, libraryID uint64, amountCents uint32, ttl time.Duration) (*model.Order, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (order_ref, user_id, library_id, amount_cents, status, expires_at)
		 VALUES (?, ?, ?, ?, 'CREATED', ?)`,
		orderRef, userID, libraryID, amountCents, exp,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Order{
		ID:          uint64(id),
		OrderRef:    orderRef,
		UserID:      userID,
		LibraryID:   libraryID,
		AmountCents: amountCents,
		Status:      model.OrderStatusCreated,
		ExpiresAt:   exp,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetByRef fetches an order by its opaque reference. Returns
// ErrOrderNotFound when the reference is unknown.
func (r *OrderRepo) GetByRef(ctx context.Context, orderRef string) (*model.Order, error) {
	return r.getByRef(ctx, r.db.QueryRowContext, orderRef, "")
}

// GetByRefTx is GetByRef inside tx with FOR UPDATE, used by the
// verification path so the status check and transition see a locked row.
func (r *OrderRepo) GetByRefTx(ctx context.Context, tx *sql.Tx, orderRef string) (*model.Order, error) {
	return r.getByRef(ctx, tx.QueryRowContext, orderRef, " FOR UPDATE")
}

type queryRowFn func(ctx context.Context, query string, args ...any) *sql.Row

func (r *OrderRepo) getByRef(ctx context.Context, queryRow queryRowFn, orderRef, suffix string) (*model.Order, error) {
	o := &model.Order{}
	err := queryRow(ctx,
		`SELECT id, order_ref, user_id, library_id, amount_cents, status, expires_at, created_at, updated_at
		   FROM orders WHERE order_ref = ?`+suffix,
		orderRef,
	).Scan(&o.ID, &o.OrderRef, &o.UserID, &o.LibraryID, &o.AmountCents, &o.Status,
		&o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// MarkPaidTx flips an order from CREATED to PAID inside tx. The WHERE
// clause on status makes the transition exactly-once: a second verifier
// racing on the same order affects zero rows and gets ErrAlreadyPaid,
// which callers treat as success without creating a second booking.
func (r *OrderRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'PAID', updated_at = UTC_TIMESTAMP()
		  WHERE id = ? AND status = 'CREATED'`,
		orderID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrAlreadyPaid
	}
	return nil
}

// MarkFailedTx records a terminal verification failure on the order.
// Only CREATED orders can fail; a PAID order is never demoted.
func (r *OrderRepo) MarkFailedTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'FAILED', updated_at = UTC_TIMESTAMP()
		  WHERE id = ? AND status = 'CREATED'`,
		orderID,
	)
	return err
}

// ExpireCreatedBefore fails every CREATED order whose expiry has passed
// and returns how many rows changed. The worker runs this on a timer.
func (r *OrderRepo) ExpireCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = 'FAILED', updated_at = UTC_TIMESTAMP()
		  WHERE status = 'CREATED' AND expires_at <= ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
