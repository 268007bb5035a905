package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-dev/refinery/internal/domain"
)

type fakeQuotaStore struct {
	dailyCount   int
	subscription *domain.Subscription
	billableUsed int64

	lastSince    time.Time
	reservations []domain.QuotaReservation
}

func (s *fakeQuotaStore) CountDailyJobs(ctx context.Context, q sqlx.ExtContext, userID string, since time.Time) (int, error) {
	s.lastSince = since
	return s.dailyCount, nil
}

func (s *fakeQuotaStore) ActiveSubscription(ctx context.Context, q sqlx.ExtContext, userID string) (*domain.Subscription, error) {
	return s.subscription, nil
}

func (s *fakeQuotaStore) SumBillableUsage(ctx context.Context, q sqlx.ExtContext, userID string, from, to time.Time) (int64, error) {
	return s.billableUsed, nil
}

func (s *fakeQuotaStore) InsertReservation(ctx context.Context, q sqlx.ExtContext, res domain.QuotaReservation) error {
	s.reservations = append(s.reservations, res)
	return nil
}

func (s *fakeQuotaStore) HasReservation(ctx context.Context, key string) (bool, error) {
	for _, r := range s.reservations {
		if r.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeQuotaStore) SettleReservation(ctx context.Context, key string, status domain.ReservationStatus) error {
	for i, r := range s.reservations {
		if r.IdempotencyKey == key && r.Status == domain.ReservationReserved {
			s.reservations[i].Status = status
		}
	}
	return nil
}

func plusSubscription() *domain.Subscription {
	now := time.Now()
	return &domain.Subscription{
		UserID:            "u1",
		Tier:              domain.TierPlus,
		Status:            domain.SubscriptionActive,
		BillingCycleStart: now.AddDate(0, 0, -10),
		BillingCycleEnd:   now.AddDate(0, 0, 20),
	}
}

func TestQuotaReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves under both limits", func(t *testing.T) {
		store := &fakeQuotaStore{dailyCount: 2, subscription: plusSubscription(), billableUsed: 100}
		locker := &fakeLocker{}
		svc := NewQuotaService(locker, store, "host-a")

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierPlus)
		require.NoError(t, err)
		require.Len(t, store.reservations, 1)
		assert.Equal(t, "u1:j1:phase1", store.reservations[0].IdempotencyKey)
		assert.Equal(t, domain.ReservationReserved, store.reservations[0].Status)
		assert.Equal(t, "host-a", store.reservations[0].LockOwner)
		assert.Equal(t, []string{"quota:u1"}, locker.keys)
	})

	t.Run("rejects at the daily limit", func(t *testing.T) {
		store := &fakeQuotaStore{dailyCount: 3}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierFree)

		var quotaErr *domain.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, domain.QuotaScopeDaily, quotaErr.Scope)
		require.NotNil(t, quotaErr.RetryAfter)
		assert.Empty(t, store.reservations)
	})

	t.Run("counts only jobs since local midnight", func(t *testing.T) {
		store := &fakeQuotaStore{dailyCount: 0}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")
		svc.now = func() time.Time {
			return time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)
		}

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierFree)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), store.lastSince)
	})

	t.Run("rejects when monthly headroom is exhausted", func(t *testing.T) {
		// PLUS has 280 credits; 271 used leaves 9, below the reserve-ahead
		// buffer of 10.
		store := &fakeQuotaStore{dailyCount: 0, subscription: plusSubscription(), billableUsed: 271}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierPlus)

		var quotaErr *domain.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, domain.QuotaScopeMonthly, quotaErr.Scope)
		assert.Empty(t, store.reservations)
	})

	t.Run("allows exactly at the headroom boundary", func(t *testing.T) {
		// 270 used leaves 10: limit-used is not below the buffer.
		store := &fakeQuotaStore{dailyCount: 0, subscription: plusSubscription(), billableUsed: 270}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierPlus)
		require.NoError(t, err)
	})

	t.Run("enterprise skips both layers", func(t *testing.T) {
		store := &fakeQuotaStore{dailyCount: 1000, billableUsed: 1 << 40}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierEnterprise)
		require.NoError(t, err)
	})

	t.Run("free tier has no monthly layer", func(t *testing.T) {
		store := &fakeQuotaStore{dailyCount: 0, billableUsed: 1 << 40}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")

		err := svc.Reserve(ctx, "u1", "j1", 1, domain.TierFree)
		require.NoError(t, err)
	})
}

func TestQuotaSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("consume marks the reservation as billed", func(t *testing.T) {
		store := &fakeQuotaStore{}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")
		require.NoError(t, svc.Reserve(ctx, "u1", "j1", 1, domain.TierFree))

		require.NoError(t, svc.Consume(ctx, "u1:j1:phase1"))
		assert.Equal(t, domain.ReservationConsumed, store.reservations[0].Status)
	})

	t.Run("release returns the reservation to the pool", func(t *testing.T) {
		store := &fakeQuotaStore{}
		svc := NewQuotaService(&fakeLocker{}, store, "host-a")
		require.NoError(t, svc.Reserve(ctx, "u1", "j1", 1, domain.TierFree))

		require.NoError(t, svc.Release(ctx, "u1:j1:phase1"))
		assert.Equal(t, domain.ReservationReleased, store.reservations[0].Status)

		// A late consume cannot rewrite a settled reservation.
		require.NoError(t, svc.Consume(ctx, "u1:j1:phase1"))
		assert.Equal(t, domain.ReservationReleased, store.reservations[0].Status)
	})
}

func TestQuotaHasReservation(t *testing.T) {
	store := &fakeQuotaStore{}
	svc := NewQuotaService(&fakeLocker{}, store, "host-a")

	ok, err := svc.HasReservation(context.Background(), "u1:j1:phase1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Reserve(context.Background(), "u1", "j1", 1, domain.TierFree))

	ok, err = svc.HasReservation(context.Background(), "u1:j1:phase1")
	require.NoError(t, err)
	assert.True(t, ok)
}
