package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// QuotaRepository handles quota reservations and the reads that feed the
// two-layer quota gate. The gate's queries run on the caller-supplied queryer
// so checking and reserving share one exclusive transaction.
type QuotaRepository struct {
	store *Store
}

// NewQuotaRepository creates a QuotaRepository.
func NewQuotaRepository(store *Store) *QuotaRepository {
	return &QuotaRepository{store: store}
}

// CountDailyJobs counts non-FAILED jobs created by the user since the given
// instant.
func (r *QuotaRepository) CountDailyJobs(ctx context.Context, q sqlx.ExtContext, userID string, since time.Time) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		`SELECT COUNT(*) FROM refactor_jobs
		 WHERE owner_id = $1 AND created_at >= $2 AND status != $3`,
		userID, since, domain.JobStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("count daily jobs for user %s: %w", userID, err)
	}
	return count, nil
}

// ActiveSubscription returns the user's most recent active subscription, or
// nil when the user has none.
func (r *QuotaRepository) ActiveSubscription(ctx context.Context, q sqlx.ExtContext, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := sqlx.GetContext(ctx, q, &sub,
		`SELECT `+subscriptionColumns+` FROM subscription_tiers
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at DESC LIMIT 1`,
		userID, domain.SubscriptionActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active subscription for user %s: %w", userID, err)
	}
	return &sub, nil
}

// CountDailyJobsFromDB counts daily jobs outside any transaction.
func (r *QuotaRepository) CountDailyJobsFromDB(ctx context.Context, userID string, since time.Time) (int, error) {
	return r.CountDailyJobs(ctx, r.store.db, userID, since)
}

// SumBillableUsageFromDB sums billable usage outside any transaction.
func (r *QuotaRepository) SumBillableUsageFromDB(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	return r.SumBillableUsage(ctx, r.store.db, userID, from, to)
}

// SumBillableUsage sums billable usage quantity recorded in [from, to).
func (r *QuotaRepository) SumBillableUsage(ctx context.Context, q sqlx.ExtContext, userID string, from, to time.Time) (int64, error) {
	var total sql.NullInt64
	err := sqlx.GetContext(ctx, q, &total,
		`SELECT SUM(quantity) FROM usage_ledger
		 WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at < $3 AND billable = true`,
		userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("sum billable usage for user %s: %w", userID, err)
	}
	return total.Int64, nil
}

// InsertReservation records a reservation row. A retry hitting the same
// idempotency key is a conflict-free no-op.
func (r *QuotaRepository) InsertReservation(ctx context.Context, q sqlx.ExtContext, res domain.QuotaReservation) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO quota_reservations (user_id, job_id, phase, status, idempotency_key, lock_owner)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		res.UserID, res.JobID, res.Phase, res.Status, res.IdempotencyKey, res.LockOwner)
	if err != nil {
		return fmt.Errorf("insert quota reservation %s: %w", res.IdempotencyKey, err)
	}
	return nil
}

// SettleReservation moves a RESERVED reservation to its final status. A
// reservation that was already settled is left untouched, so retries and
// duplicate status updates are no-ops.
func (r *QuotaRepository) SettleReservation(ctx context.Context, key string, status domain.ReservationStatus) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE quota_reservations SET status = $2
		 WHERE idempotency_key = $1 AND status = $3`,
		key, status, domain.ReservationReserved)
	if err != nil {
		return fmt.Errorf("settle quota reservation %s as %s: %w", key, status, err)
	}
	return nil
}

// HasReservation reports whether a reservation exists for the idempotency key.
func (r *QuotaRepository) HasReservation(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.store.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM quota_reservations WHERE idempotency_key = $1)`, key)
	if err != nil {
		return false, fmt.Errorf("check quota reservation %s: %w", key, err)
	}
	return exists, nil
}
