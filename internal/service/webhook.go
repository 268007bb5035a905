package service

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// TxRunner runs a unit of work in one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

// PaymentStore is the data access consumed by WebhookService. All three
// operations run on the caller's transaction so the replay check, the mirror
// upsert, and the tier sync are atomic.
type PaymentStore interface {
	MirrorBySubscription(ctx context.Context, q sqlx.ExtContext, externalSubscriptionID string) (*domain.PaymentSubscription, error)
	UpsertMirror(ctx context.Context, q sqlx.ExtContext, ev domain.PaymentEvent) error
	SyncTier(ctx context.Context, q sqlx.ExtContext, externalCustomerID string, tier domain.Tier, status domain.SubscriptionStatus) error
}

// WebhookService applies external payment-provider events to subscription
// state. Application is idempotent on the provider-assigned event id:
// redelivery of an already-applied event is reported as a duplicate no-op.
type WebhookService struct {
	tx    TxRunner
	store PaymentStore
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(tx TxRunner, store PaymentStore) *WebhookService {
	return &WebhookService{tx: tx, store: store}
}

// Apply maps the event to a tier/status change and writes it through.
// Returns duplicate=true without mutating anything when the event id was
// already applied to this subscription.
func (s *WebhookService) Apply(ctx context.Context, ev domain.PaymentEvent) (duplicate bool, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		mirror, err := s.store.MirrorBySubscription(ctx, tx, ev.ExternalSubscriptionID)
		if err != nil {
			return err
		}
		if mirror != nil && mirror.LastWebhookEventID != nil && *mirror.LastWebhookEventID == ev.ID {
			duplicate = true
			return nil
		}

		if err := s.store.UpsertMirror(ctx, tx, ev); err != nil {
			return err
		}

		switch ev.Status {
		case domain.SubscriptionActive:
			if err := s.store.SyncTier(ctx, tx, ev.ExternalCustomerID, ev.Tier, domain.SubscriptionActive); err != nil {
				return err
			}
		case domain.SubscriptionCancelled, domain.SubscriptionPastDue:
			// Cancellation and payment failure drop the user to the free tier.
			if err := s.store.SyncTier(ctx, tx, ev.ExternalCustomerID, domain.TierFree, ev.Status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if duplicate {
		slog.Info("webhook event replayed", "event_id", ev.ID, "subscription", ev.ExternalSubscriptionID)
	} else {
		slog.Info("webhook event applied", "event_id", ev.ID, "subscription", ev.ExternalSubscriptionID, "status", ev.Status)
	}
	return duplicate, nil
}
