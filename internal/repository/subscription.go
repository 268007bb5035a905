package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/refinery-dev/refinery/internal/domain"
)

// SubscriptionRepository handles authoritative subscription records and the
// usage ledger reads that feed the usage views.
type SubscriptionRepository struct {
	store *Store
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(store *Store) *SubscriptionRepository {
	return &SubscriptionRepository{store: store}
}

const subscriptionColumns = `id, user_id, tier, status, context_cap, operating_mode,
	billing_cycle_start, billing_cycle_end, external_customer_id, payment_gateway,
	created_at, updated_at`

// Active returns the user's most recent active subscription, or nil.
func (r *SubscriptionRepository) Active(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.store.db.GetContext(ctx, &sub,
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

// Current returns the newest subscription in any billable state (ACTIVE,
// TRIAL or PAST_DUE), or nil.
func (r *SubscriptionRepository) Current(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.store.db.GetContext(ctx, &sub,
		`SELECT `+subscriptionColumns+` FROM subscription_tiers
		 WHERE user_id = $1 AND status IN ($2, $3, $4)
		 ORDER BY created_at DESC LIMIT 1`,
		userID, domain.SubscriptionActive, domain.SubscriptionTrial, domain.SubscriptionPastDue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find current subscription for user %s: %w", userID, err)
	}
	return &sub, nil
}

// ProvisionFree creates the FREE tier record for a new user, with a billing
// cycle anchored to the current calendar month.
func (r *SubscriptionRepository) ProvisionFree(ctx context.Context, userID string) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO subscription_tiers
		   (user_id, tier, status, context_cap, operating_mode, billing_cycle_start, billing_cycle_end)
		 VALUES ($1, $2, $3, 128000, $4, date_trunc('month', NOW()), date_trunc('month', NOW()) + INTERVAL '1 month')`,
		userID, domain.TierFree, domain.SubscriptionActive, domain.OperatingModeSimple)
	if err != nil {
		return fmt.Errorf("provision free subscription for user %s: %w", userID, err)
	}
	return nil
}

// UsageByEventType aggregates billable usage per event type in [from, to).
func (r *SubscriptionRepository) UsageByEventType(ctx context.Context, userID string, from, to time.Time) (map[string]int64, error) {
	rows := []struct {
		EventType string `db:"event_type"`
		Quantity  int64  `db:"quantity"`
	}{}
	err := r.store.db.SelectContext(ctx, &rows,
		`SELECT event_type, SUM(quantity) AS quantity FROM usage_ledger
		 WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at < $3 AND billable = true
		 GROUP BY event_type`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage for user %s: %w", userID, err)
	}
	usage := make(map[string]int64, len(rows))
	for _, row := range rows {
		usage[row.EventType] = row.Quantity
	}
	return usage, nil
}

// UsageForJob aggregates usage per event type for one job, with a rollup of
// billability and the worst failure class seen.
func (r *SubscriptionRepository) UsageForJob(ctx context.Context, jobID string) (map[string]int64, bool, *string, error) {
	rows := []struct {
		EventType    string  `db:"event_type"`
		Quantity     int64   `db:"quantity"`
		Billable     bool    `db:"billable"`
		FailureClass *string `db:"failure_class"`
	}{}
	err := r.store.db.SelectContext(ctx, &rows,
		`SELECT event_type, SUM(quantity) AS quantity, BOOL_OR(billable) AS billable,
		        MAX(failure_class) AS failure_class
		 FROM usage_ledger WHERE job_id = $1 GROUP BY event_type`, jobID)
	if err != nil {
		return nil, false, nil, fmt.Errorf("aggregate usage for job %s: %w", jobID, err)
	}

	usage := make(map[string]int64, len(rows))
	billable := true
	var failureClass *string
	for _, row := range rows {
		usage[row.EventType] = row.Quantity
		if !row.Billable {
			billable = false
		}
		if row.FailureClass != nil {
			failureClass = row.FailureClass
		}
	}
	return usage, billable, failureClass, nil
}
