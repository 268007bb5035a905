package domain

import "time"

// AuthProvider represents an OAuth provider.
type AuthProvider string

const (
	AuthProviderGoogle AuthProvider = "GOOGLE"
	AuthProviderGitHub AuthProvider = "GITHUB"
)

// User represents an account. Password users carry a bcrypt hash; OAuth
// users are linked through OAuthAccount rows instead.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	DisplayName  *string    `json:"display_name,omitempty" db:"display_name"`
	IsAdmin      bool       `json:"is_admin" db:"is_admin"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// OAuthAccount links a provider identity to a user.
type OAuthAccount struct {
	ID                int64        `json:"id" db:"id"`
	UserID            string       `json:"user_id" db:"user_id"`
	Provider          AuthProvider `json:"provider" db:"provider"`
	ProviderAccountID string       `json:"provider_account_id" db:"provider_account_id"`
	ProviderLogin     string       `json:"provider_login" db:"provider_login"`
	ProviderEmail     *string      `json:"provider_email,omitempty" db:"provider_email"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// RefreshToken is a stored refresh token. TokenDigest is the SHA-256 hex of
// the raw token, used for keyed lookup instead of scanning bcrypt hashes.
type RefreshToken struct {
	ID          int64      `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	TokenDigest string     `json:"-" db:"token_digest"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// DynamicConfig is one key/value pair of durable runtime configuration.
type DynamicConfig struct {
	Key       string    `json:"key" db:"config_key"`
	Value     string    `json:"value" db:"config_value"`
	UpdatedBy *string   `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Well-known dynamic config keys read by the kill-switch cache.
const (
	ConfigKeyKillSwitch       = "system.kill_switch.global"
	ConfigKeyKillSwitchReason = "system.kill_switch.reason"
)
