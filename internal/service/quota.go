package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// monthlyHeadroomMin is the reserve-ahead buffer for the monthly credit
// layer: remaining headroom must exceed this, not merely be non-negative, so
// a reservation cannot be granted that the cycle can no longer fulfil.
// Policy constant pending product confirmation.
const monthlyHeadroomMin = 10

// Locker provides a named exclusive region for one atomic unit of work. The
// transaction handed to fn carries the lock; it is released when the unit of
// work commits or rolls back.
type Locker interface {
	WithExclusive(ctx context.Context, key string, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

// QuotaStore is the data access consumed by QuotaService. The queryer
// argument lets every read and the reservation write run on the same
// exclusive transaction.
type QuotaStore interface {
	CountDailyJobs(ctx context.Context, q sqlx.ExtContext, userID string, since time.Time) (int, error)
	ActiveSubscription(ctx context.Context, q sqlx.ExtContext, userID string) (*domain.Subscription, error)
	SumBillableUsage(ctx context.Context, q sqlx.ExtContext, userID string, from, to time.Time) (int64, error)
	InsertReservation(ctx context.Context, q sqlx.ExtContext, res domain.QuotaReservation) error
	HasReservation(ctx context.Context, key string) (bool, error)
	SettleReservation(ctx context.Context, key string, status domain.ReservationStatus) error
}

// QuotaService is the two-layer rate/credit gate. All of Reserve runs inside
// a per-user exclusive region so concurrent requests by one user cannot both
// pass the check before either reserves.
type QuotaService struct {
	locker    Locker
	store     QuotaStore
	lockOwner string
	now       func() time.Time
}

// NewQuotaService creates a QuotaService. lockOwner identifies this process
// in reservation rows.
func NewQuotaService(locker Locker, store QuotaStore, lockOwner string) *QuotaService {
	return &QuotaService{
		locker:    locker,
		store:     store,
		lockOwner: lockOwner,
		now:       time.Now,
	}
}

// Reserve checks both quota layers and records the reservation atomically.
// Safe to retry: the reservation insert is idempotent on (user, job, phase).
func (s *QuotaService) Reserve(ctx context.Context, userID, jobID string, phase int, tier domain.Tier) error {
	return s.locker.WithExclusive(ctx, "quota:"+userID, func(ctx context.Context, tx *sqlx.Tx) error {
		now := s.now()

		if err := s.checkDaily(ctx, tx, userID, tier, now); err != nil {
			return err
		}
		if err := s.checkMonthly(ctx, tx, userID, tier); err != nil {
			return err
		}

		res := domain.QuotaReservation{
			UserID:         userID,
			JobID:          jobID,
			Phase:          phase,
			Status:         domain.ReservationReserved,
			IdempotencyKey: domain.ReservationKey(userID, jobID, phase),
			LockOwner:      s.lockOwner,
		}
		if err := s.store.InsertReservation(ctx, tx, res); err != nil {
			return err
		}

		slog.Info("quota reserved", "user_id", userID, "job_id", jobID, "phase", phase, "tier", tier)
		return nil
	})
}

// HasReservation reports whether a reservation exists for the idempotency key.
func (s *QuotaService) HasReservation(ctx context.Context, key string) (bool, error) {
	return s.store.HasReservation(ctx, key)
}

// Consume marks the reservation as billed work. Idempotent: a reservation
// that is already settled is left as it is.
func (s *QuotaService) Consume(ctx context.Context, key string) error {
	return s.store.SettleReservation(ctx, key, domain.ReservationConsumed)
}

// Release returns an unconsumed reservation to the pool.
func (s *QuotaService) Release(ctx context.Context, key string) error {
	return s.store.SettleReservation(ctx, key, domain.ReservationReleased)
}

func (s *QuotaService) checkDaily(ctx context.Context, tx *sqlx.Tx, userID string, tier domain.Tier, now time.Time) error {
	limit, bounded := tier.DailyJobLimit()
	if !bounded {
		return nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := s.store.CountDailyJobs(ctx, tx, userID, midnight)
	if err != nil {
		return err
	}
	if count >= limit {
		retryAfter := now.Add(24 * time.Hour)
		return &domain.QuotaExceededError{Scope: domain.QuotaScopeDaily, RetryAfter: &retryAfter}
	}
	return nil
}

func (s *QuotaService) checkMonthly(ctx context.Context, tx *sqlx.Tx, userID string, tier domain.Tier) error {
	limit, bounded := tier.MonthlyCreditLimit()
	if !bounded {
		// Free tier has no monthly layer; unbounded tiers skip it too.
		return nil
	}

	sub, err := s.store.ActiveSubscription(ctx, tx, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	used, err := s.store.SumBillableUsage(ctx, tx, userID, sub.BillingCycleStart, sub.BillingCycleEnd)
	if err != nil {
		return err
	}
	if limit-used < monthlyHeadroomMin {
		return &domain.QuotaExceededError{Scope: domain.QuotaScopeMonthly}
	}
	return nil
}
