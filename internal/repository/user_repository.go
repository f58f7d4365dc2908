package repository // package repository provides data access operations for users

import (
	"context"      // context for query cancellation and deadlines
	"database/sql" // SQL database access
	"strings"      // string helpers for normalising emails

	"github.com/iliyamo/library-seat-booking/internal/model"
)

// UserRepo provides CRUD operations on the users table.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo constructs a UserRepo with the given database handle.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// NormalizeEmail lower-cases and trims an email address. Every lookup and
// insert goes through this so that the same address never produces two
// accounts differing only in case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailExists reports whether an active account is registered for the
// given address. It intentionally returns only a boolean so the identity
// check endpoint can answer without exposing account details.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE email = ? AND is_active = 1 LIMIT 1`,
		NormalizeEmail(email),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByEmail fetches a user row by email. Returns ErrNotFound when no
// account matches.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, is_active, created_at, updated_at
		   FROM users WHERE email = ?`,
		NormalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID fetches a user row by primary key. Returns ErrNotFound when the
// id does not exist.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, is_active, created_at, updated_at
		   FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user and returns its id. Returns ErrEmailTaken when
// the unique index on email rejects the insert.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, is_active)
		 VALUES (?, ?, ?, 1)`,
		NormalizeEmail(email), passwordHash, role,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailTaken
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// isDuplicateKey detects MySQL error 1062 without importing the driver's
// error type everywhere.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Error 1062")
}
