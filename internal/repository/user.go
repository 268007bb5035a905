package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/refinery-dev/refinery/internal/domain"
)

// UserRepository handles user and OAuth account data access.
type UserRepository struct {
	store *Store
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

const userColumns = `id, email, password_hash, display_name, is_admin, deleted_at, created_at, updated_at`

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.store.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id %s: %w", id, err)
	}
	return &user, nil
}

// FindByEmail retrieves a user by email, including soft-deleted rows so the
// caller can reject logins for deleted accounts explicitly.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.store.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// Create inserts a password user.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	var user domain.User
	err := r.store.db.GetContext(ctx, &user,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2)
		 RETURNING `+userColumns,
		email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// CreateOAuthUser inserts a user without a password.
func (r *UserRepository) CreateOAuthUser(ctx context.Context, email string, displayName *string) (*domain.User, error) {
	var user domain.User
	err := r.store.db.GetContext(ctx, &user,
		`INSERT INTO users (email, display_name) VALUES ($1, $2)
		 RETURNING `+userColumns,
		email, displayName)
	if err != nil {
		return nil, fmt.Errorf("create oauth user: %w", err)
	}
	return &user, nil
}

// FindOAuthAccount retrieves the link row for a provider identity, or nil.
func (r *UserRepository) FindOAuthAccount(ctx context.Context, provider domain.AuthProvider, providerAccountID string) (*domain.OAuthAccount, error) {
	var account domain.OAuthAccount
	err := r.store.db.GetContext(ctx, &account,
		`SELECT id, user_id, provider, provider_account_id, provider_login, provider_email, created_at
		 FROM oauth_accounts WHERE provider = $1 AND provider_account_id = $2`,
		provider, providerAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find oauth account %s/%s: %w", provider, providerAccountID, err)
	}
	return &account, nil
}

// LinkOAuthAccount creates a provider link for an existing user.
func (r *UserRepository) LinkOAuthAccount(ctx context.Context, account domain.OAuthAccount) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO oauth_accounts (user_id, provider, provider_account_id, provider_login, provider_email)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.UserID, account.Provider, account.ProviderAccountID, account.ProviderLogin, account.ProviderEmail)
	if err != nil {
		return fmt.Errorf("link oauth account: %w", err)
	}
	return nil
}
