package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/refinery-dev/refinery/internal/domain"
)

// ConfigRepository handles the durable dynamic configuration store.
type ConfigRepository struct {
	store *Store
}

// NewConfigRepository creates a ConfigRepository.
func NewConfigRepository(store *Store) *ConfigRepository {
	return &ConfigRepository{store: store}
}

// Get returns one config entry.
func (r *ConfigRepository) Get(ctx context.Context, key string) (*domain.DynamicConfig, error) {
	var cfg domain.DynamicConfig
	err := r.store.db.GetContext(ctx, &cfg,
		`SELECT config_key, config_value, updated_by, updated_at
		 FROM dynamic_configs WHERE config_key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get dynamic config %s: %w", key, err)
	}
	return &cfg, nil
}

// Set upserts one config entry, recording the updater identity.
func (r *ConfigRepository) Set(ctx context.Context, key, value, updatedBy string) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO dynamic_configs (config_key, config_value, updated_by)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (config_key) DO UPDATE
		   SET config_value = $2, updated_by = $3, updated_at = NOW()`,
		key, value, updatedBy)
	if err != nil {
		return fmt.Errorf("set dynamic config %s: %w", key, err)
	}
	return nil
}

// KillSwitch reads the two well-known kill-switch keys. A missing flag means
// not blocked; a missing reason falls back to a generic message.
func (r *ConfigRepository) KillSwitch(ctx context.Context) (bool, string, error) {
	flag, err := r.Get(ctx, domain.ConfigKeyKillSwitch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, "", nil
		}
		return false, "", err
	}

	reason := "System maintenance"
	if reasonCfg, err := r.Get(ctx, domain.ConfigKeyKillSwitchReason); err == nil && reasonCfg.Value != "" {
		reason = reasonCfg.Value
	}
	return flag.Value == "true", reason, nil
}
