package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/refinery-dev/refinery/internal/domain"
)

// TokenRepository handles refresh token persistence. Tokens are stored as a
// SHA-256 digest of the raw value so lookup is a single keyed query rather
// than a scan over salted hashes.
type TokenRepository struct {
	store *Store
}

// NewTokenRepository creates a TokenRepository.
func NewTokenRepository(store *Store) *TokenRepository {
	return &TokenRepository{store: store}
}

// Insert stores a refresh token digest.
func (r *TokenRepository) Insert(ctx context.Context, userID, digest string, expiresAt time.Time) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_digest, expires_at) VALUES ($1, $2, $3)`,
		userID, digest, expiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindByDigest returns the live token row matching the digest, or
// ErrNotFound when no unexpired, unrevoked row exists.
func (r *TokenRepository) FindByDigest(ctx context.Context, digest string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.store.db.GetContext(ctx, &token,
		`SELECT id, user_id, token_digest, expires_at, revoked_at, created_at
		 FROM refresh_tokens
		 WHERE token_digest = $1 AND expires_at > NOW() AND revoked_at IS NULL`,
		digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

// Revoke marks a token unusable. Rotation revokes the old token and inserts
// the replacement.
func (r *TokenRepository) Revoke(ctx context.Context, id int64) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token %d: %w", id, err)
	}
	return nil
}
