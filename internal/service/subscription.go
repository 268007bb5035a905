package service

import (
	"context"
	"time"

	"github.com/refinery-dev/refinery/internal/domain"
)

// SubscriptionStore is the data access consumed by SubscriptionService.
type SubscriptionStore interface {
	Current(ctx context.Context, userID string) (*domain.Subscription, error)
	ProvisionFree(ctx context.Context, userID string) error
	UsageByEventType(ctx context.Context, userID string, from, to time.Time) (map[string]int64, error)
	UsageForJob(ctx context.Context, jobID string) (map[string]int64, bool, *string, error)
}

// UsageReader reads the counters that feed the usage summary.
type UsageReader interface {
	CountDailyJobsFromDB(ctx context.Context, userID string, since time.Time) (int, error)
	SumBillableUsageFromDB(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

// UsageSummary is the caller-facing view of both quota layers.
type UsageSummary struct {
	Tier             domain.Tier      `json:"tier"`
	DailyUsed        int              `json:"daily_used"`
	DailyLimit       *int             `json:"daily_limit,omitempty"`
	MonthlyUsed      int64            `json:"monthly_used"`
	MonthlyLimit     *int64           `json:"monthly_limit,omitempty"`
	CycleStart       time.Time        `json:"cycle_start"`
	CycleEnd         time.Time        `json:"cycle_end"`
	UsageByEventType map[string]int64 `json:"usage_by_event_type"`
}

// JobUsage is the per-job usage rollup.
type JobUsage struct {
	JobID            string           `json:"job_id"`
	UsageByEventType map[string]int64 `json:"usage_by_event_type"`
	Billable         bool             `json:"billable"`
	FailureClass     *string          `json:"failure_class,omitempty"`
}

// SubscriptionService serves subscription and usage views. Users with no
// subscription row are provisioned onto the free tier on first read.
type SubscriptionService struct {
	store SubscriptionStore
	usage UsageReader
	jobs  JobReader
	now   func() time.Time
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(store SubscriptionStore, usage UsageReader, jobs JobReader) *SubscriptionService {
	return &SubscriptionService{store: store, usage: usage, jobs: jobs, now: time.Now}
}

// Current returns the user's subscription, provisioning the free tier when
// none exists yet.
func (s *SubscriptionService) Current(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.store.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return sub, nil
	}

	if err := s.store.ProvisionFree(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Current(ctx, userID)
}

// Usage returns the two-layer usage summary for the user's current cycle.
func (s *SubscriptionService) Usage(ctx context.Context, userID string) (*UsageSummary, error) {
	sub, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dailyUsed, err := s.usage.CountDailyJobsFromDB(ctx, userID, midnight)
	if err != nil {
		return nil, err
	}

	monthlyUsed, err := s.usage.SumBillableUsageFromDB(ctx, userID, sub.BillingCycleStart, sub.BillingCycleEnd)
	if err != nil {
		return nil, err
	}

	byType, err := s.store.UsageByEventType(ctx, userID, sub.BillingCycleStart, sub.BillingCycleEnd)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{
		Tier:             sub.Tier,
		DailyUsed:        dailyUsed,
		MonthlyUsed:      monthlyUsed,
		CycleStart:       sub.BillingCycleStart,
		CycleEnd:         sub.BillingCycleEnd,
		UsageByEventType: byType,
	}
	if limit, bounded := sub.Tier.DailyJobLimit(); bounded {
		summary.DailyLimit = &limit
	}
	if limit, bounded := sub.Tier.MonthlyCreditLimit(); bounded {
		summary.MonthlyLimit = &limit
	}
	return summary, nil
}

// UsageForJob returns the usage rollup for one job, owner-checked.
func (s *SubscriptionService) UsageForJob(ctx context.Context, userID, jobID string) (*JobUsage, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != userID {
		return nil, domain.ErrForbidden
	}

	byType, billable, failureClass, err := s.store.UsageForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobUsage{
		JobID:            jobID,
		UsageByEventType: byType,
		Billable:         billable,
		FailureClass:     failureClass,
	}, nil
}
