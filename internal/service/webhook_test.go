package service

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-dev/refinery/internal/domain"
)

type tierSync struct {
	customerID string
	tier       domain.Tier
	status     domain.SubscriptionStatus
}

type fakePaymentStore struct {
	mirror *domain.PaymentSubscription

	upserts []domain.PaymentEvent
	syncs   []tierSync
}

func (s *fakePaymentStore) MirrorBySubscription(ctx context.Context, q sqlx.ExtContext, externalSubscriptionID string) (*domain.PaymentSubscription, error) {
	return s.mirror, nil
}

func (s *fakePaymentStore) UpsertMirror(ctx context.Context, q sqlx.ExtContext, ev domain.PaymentEvent) error {
	s.upserts = append(s.upserts, ev)
	return nil
}

func (s *fakePaymentStore) SyncTier(ctx context.Context, q sqlx.ExtContext, externalCustomerID string, tier domain.Tier, status domain.SubscriptionStatus) error {
	s.syncs = append(s.syncs, tierSync{customerID: externalCustomerID, tier: tier, status: status})
	return nil
}

func paymentEvent(status domain.SubscriptionStatus) domain.PaymentEvent {
	return domain.PaymentEvent{
		ID:                     "evt-1",
		Gateway:                "stripe",
		ExternalSubscriptionID: "sub-1",
		ExternalCustomerID:     "cus-1",
		Tier:                   domain.TierPro,
		Status:                 status,
	}
}

func TestWebhookApply(t *testing.T) {
	ctx := context.Background()

	t.Run("active event syncs the event tier", func(t *testing.T) {
		store := &fakePaymentStore{}
		svc := NewWebhookService(&fakeLocker{}, store)

		duplicate, err := svc.Apply(ctx, paymentEvent(domain.SubscriptionActive))
		require.NoError(t, err)

		assert.False(t, duplicate)
		require.Len(t, store.upserts, 1)
		require.Len(t, store.syncs, 1)
		assert.Equal(t, tierSync{customerID: "cus-1", tier: domain.TierPro, status: domain.SubscriptionActive}, store.syncs[0])
	})

	t.Run("replayed event id is a no-op", func(t *testing.T) {
		eventID := "evt-1"
		store := &fakePaymentStore{mirror: &domain.PaymentSubscription{
			ExternalSubscriptionID: "sub-1",
			LastWebhookEventID:     &eventID,
		}}
		svc := NewWebhookService(&fakeLocker{}, store)

		duplicate, err := svc.Apply(ctx, paymentEvent(domain.SubscriptionActive))
		require.NoError(t, err)

		assert.True(t, duplicate)
		assert.Empty(t, store.upserts)
		assert.Empty(t, store.syncs)
	})

	t.Run("cancellation drops the user to free", func(t *testing.T) {
		store := &fakePaymentStore{}
		svc := NewWebhookService(&fakeLocker{}, store)

		_, err := svc.Apply(ctx, paymentEvent(domain.SubscriptionCancelled))
		require.NoError(t, err)

		require.Len(t, store.syncs, 1)
		assert.Equal(t, domain.TierFree, store.syncs[0].tier)
		assert.Equal(t, domain.SubscriptionCancelled, store.syncs[0].status)
	})

	t.Run("payment failure drops the user to free", func(t *testing.T) {
		store := &fakePaymentStore{}
		svc := NewWebhookService(&fakeLocker{}, store)

		_, err := svc.Apply(ctx, paymentEvent(domain.SubscriptionPastDue))
		require.NoError(t, err)

		require.Len(t, store.syncs, 1)
		assert.Equal(t, domain.TierFree, store.syncs[0].tier)
		assert.Equal(t, domain.SubscriptionPastDue, store.syncs[0].status)
	})

	t.Run("trial mirrors without a tier sync", func(t *testing.T) {
		store := &fakePaymentStore{}
		svc := NewWebhookService(&fakeLocker{}, store)

		_, err := svc.Apply(ctx, paymentEvent(domain.SubscriptionTrial))
		require.NoError(t, err)

		require.Len(t, store.upserts, 1)
		assert.Empty(t, store.syncs)
	})
}
