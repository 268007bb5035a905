package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// PaymentRepository handles the payment-provider subscription mirror. The
// webhook application path runs on a caller-supplied queryer so the replay
// check, the mirror upsert, and the tier sync share one transaction.
type PaymentRepository struct {
	store *Store
}

// NewPaymentRepository creates a PaymentRepository.
func NewPaymentRepository(store *Store) *PaymentRepository {
	return &PaymentRepository{store: store}
}

// MirrorBySubscription returns the mirror row for an external subscription
// id, or nil when the provider subscription has never been seen.
func (r *PaymentRepository) MirrorBySubscription(ctx context.Context, q sqlx.ExtContext, externalSubscriptionID string) (*domain.PaymentSubscription, error) {
	var mirror domain.PaymentSubscription
	err := sqlx.GetContext(ctx, q, &mirror,
		`SELECT id, user_id, gateway, external_subscription_id, external_customer_id,
		        tier, status, last_webhook_event_id, created_at, updated_at
		 FROM payment_subscriptions WHERE external_subscription_id = $1`,
		externalSubscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment mirror %s: %w", externalSubscriptionID, err)
	}
	return &mirror, nil
}

// UpsertMirror writes the provider's view of a subscription, storing the
// applied event id as part of the same row write.
func (r *PaymentRepository) UpsertMirror(ctx context.Context, q sqlx.ExtContext, ev domain.PaymentEvent) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO payment_subscriptions
		   (user_id, gateway, external_subscription_id, external_customer_id, tier, status, last_webhook_event_id)
		 SELECT st.user_id, $1, $2, $3, $4, $5, $6
		 FROM subscription_tiers st WHERE st.external_customer_id = $3
		 LIMIT 1
		 ON CONFLICT (external_subscription_id) DO UPDATE
		   SET tier = $4, status = $5, last_webhook_event_id = $6, updated_at = NOW()`,
		ev.Gateway, ev.ExternalSubscriptionID, ev.ExternalCustomerID, ev.Tier, ev.Status, ev.ID)
	if err != nil {
		return fmt.Errorf("upsert payment mirror %s: %w", ev.ExternalSubscriptionID, err)
	}
	return nil
}

// SyncTier propagates the provider-driven tier/status change to the
// authoritative subscription record.
func (r *PaymentRepository) SyncTier(ctx context.Context, q sqlx.ExtContext, externalCustomerID string, tier domain.Tier, status domain.SubscriptionStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE subscription_tiers SET tier = $1, status = $2, updated_at = NOW()
		 WHERE external_customer_id = $3`,
		tier, status, externalCustomerID)
	if err != nil {
		return fmt.Errorf("sync subscription tier for customer %s: %w", externalCustomerID, err)
	}
	return nil
}
