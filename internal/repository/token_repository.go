package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo stores refresh token hashes. Only the SHA-256 hash of the raw
// token is ever written; the raw value lives solely on the client.
type TokenRepo struct {
	db *sql.DB
}

// NewTokenRepo constructs a TokenRepo with the given database handle.
func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Store inserts a refresh token hash for a user with its expiry.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, tokenHash, exp.UTC(),
	)
	return err
}

// Lookup returns the user id owning a still-valid token hash, or
// ErrNotFound when the hash is unknown, revoked or expired.
func (r *TokenRepo) Lookup(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM refresh_tokens
		  WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()`,
		tokenHash,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// Revoke marks a token hash as revoked. Revoking an unknown hash is a
// no-op so logout stays idempotent.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP()
		  WHERE token_hash = ? AND revoked_at IS NULL`,
		tokenHash,
	)
	return err
}

// RevokeAllForUser revokes every live token for a user, e.g. on password
// change.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP()
		  WHERE user_id = ? AND revoked_at IS NULL`,
		userID,
	)
	return err
}
