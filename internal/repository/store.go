package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store wraps the database handle and provides the transactional building
// blocks the services compose: plain transactions and key-scoped exclusive
// regions backed by Postgres advisory locks.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for non-transactional reads.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithExclusive runs fn while holding a transaction-scoped advisory lock on
// key. The key is hashed server-side; the lock is released automatically
// when the transaction commits or rolls back. Callers with the same key are
// serialized, callers with different keys never block each other.
func (s *Store) WithExclusive(ctx context.Context, key string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire advisory lock %q: %w", key, err)
		}
		return fn(ctx, tx)
	})
}
