package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-dev/refinery/internal/domain"
)

type fakeJobStore struct {
	jobs map[string]*domain.Job

	deleted     []string
	transitions []string
	failures    []string
	snapshots   []domain.EntitlementSnapshot
	audits      []domain.AuditEvent
}

func newFakeJobStore(jobs ...*domain.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: map[string]*domain.Job{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) List(ctx context.Context, ownerID string, status *domain.JobStatus, limit, offset int) ([]domain.Job, int, error) {
	var out []domain.Job
	for _, j := range s.jobs {
		if j.OwnerID == ownerID && (status == nil || j.Status == *status) {
			out = append(out, *j)
		}
	}
	return out, len(out), nil
}

func (s *fakeJobStore) Create(ctx context.Context, job *domain.Job, audit domain.AuditEvent) error {
	copied := *job
	s.jobs[job.ID] = &copied
	s.audits = append(s.audits, audit)
	return nil
}

func (s *fakeJobStore) Delete(ctx context.Context, id string) error {
	delete(s.jobs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeJobStore) Transition(ctx context.Context, jobID string, from, to domain.JobStatus, audit domain.AuditEvent) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != from {
		return &domain.StateError{Current: job.Status}
	}
	job.Status = to
	s.transitions = append(s.transitions, jobID)
	s.audits = append(s.audits, audit)
	return nil
}

func (s *fakeJobStore) MarkFailed(ctx context.Context, jobID, reason string, audit domain.AuditEvent) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return &domain.StateError{Current: job.Status}
	}
	job.Status = domain.JobStatusFailed
	job.FailureReason = &reason
	s.failures = append(s.failures, reason)
	s.audits = append(s.audits, audit)
	return nil
}

func (s *fakeJobStore) EnterDeepFix(ctx context.Context, jobID string, from domain.JobStatus, audit domain.AuditEvent) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != from {
		return &domain.StateError{Current: job.Status}
	}
	job.Status = domain.JobStatusDeepFixActive
	job.AttemptCount = 0
	s.audits = append(s.audits, audit)
	return nil
}

func (s *fakeJobStore) SaveEntitlementSnapshot(ctx context.Context, snap domain.EntitlementSnapshot) error {
	s.snapshots = append(s.snapshots, snap)
	return nil
}

type fakeSubscriptionReader struct {
	sub *domain.Subscription
}

func (r *fakeSubscriptionReader) Active(ctx context.Context, userID string) (*domain.Subscription, error) {
	return r.sub, nil
}

type fakeQuotaGate struct {
	reserveErr error
	reserved   map[string]bool

	consumed []string
	released []string
}

func (g *fakeQuotaGate) Reserve(ctx context.Context, userID, jobID string, phase int, tier domain.Tier) error {
	if g.reserveErr != nil {
		return g.reserveErr
	}
	if g.reserved == nil {
		g.reserved = map[string]bool{}
	}
	g.reserved[domain.ReservationKey(userID, jobID, phase)] = true
	return nil
}

func (g *fakeQuotaGate) HasReservation(ctx context.Context, key string) (bool, error) {
	return g.reserved[key], nil
}

func (g *fakeQuotaGate) Consume(ctx context.Context, key string) error {
	g.consumed = append(g.consumed, key)
	return nil
}

func (g *fakeQuotaGate) Release(ctx context.Context, key string) error {
	g.released = append(g.released, key)
	return nil
}

type fakeAuditWriter struct {
	events []domain.AuditEvent
}

func (w *fakeAuditWriter) Write(ctx context.Context, ev domain.AuditEvent) error {
	w.events = append(w.events, ev)
	return nil
}

type fakeNotifier struct {
	notifications []domain.Notification
}

func (n *fakeNotifier) Insert(ctx context.Context, notification domain.Notification) error {
	n.notifications = append(n.notifications, notification)
	return nil
}

type fakeProjectReader struct {
	projects map[string]*domain.Project
}

func (r *fakeProjectReader) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type fakeLivenessReader struct {
	session *domain.HeartbeatSession
}

func (r *fakeLivenessReader) FindLive(ctx context.Context, jobID string) (*domain.HeartbeatSession, error) {
	return r.session, nil
}

type jobFixture struct {
	store    *fakeJobStore
	quota    *fakeQuotaGate
	audit    *fakeAuditWriter
	notifier *fakeNotifier
	liveness *fakeLivenessReader
	engine   *fakeEngine
	svc      *JobService
}

func newJobFixture(jobs ...*domain.Job) *jobFixture {
	f := &jobFixture{
		store:    newFakeJobStore(jobs...),
		quota:    &fakeQuotaGate{},
		audit:    &fakeAuditWriter{},
		notifier: &fakeNotifier{},
		liveness: &fakeLivenessReader{},
		engine:   &fakeEngine{},
	}
	f.svc = NewJobService(
		f.store,
		&fakeSubscriptionReader{},
		f.quota,
		f.audit,
		f.notifier,
		&fakeProjectReader{projects: map[string]*domain.Project{
			"p1": {ID: "p1", OwnerID: "u1"},
		}},
		f.liveness,
		f.engine,
		14*24*time.Hour,
	)
	return f
}

func TestJobCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and reserves quota", func(t *testing.T) {
		f := newJobFixture()

		job, err := f.svc.Create(ctx, "u1", domain.TierFree, CreateJobParams{
			ExecutionMode: domain.ExecutionModeLocalDocker,
			TargetPaths:   []string{"src/"},
			Surface:       domain.SurfaceWeb,
		})
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.NotEmpty(t, job.ID)
		require.NotNil(t, job.ArtifactExpiresAt)
		assert.True(t, f.quota.reserved[domain.ReservationKey("u1", job.ID, 1)])
		require.Len(t, f.store.audits, 1)
		assert.Equal(t, "job.created", f.store.audits[0].EventType)
	})

	t.Run("unwinds the job when quota is rejected", func(t *testing.T) {
		f := newJobFixture()
		f.quota.reserveErr = &domain.QuotaExceededError{Scope: domain.QuotaScopeDaily}

		_, err := f.svc.Create(ctx, "u1", domain.TierFree, CreateJobParams{
			ExecutionMode: domain.ExecutionModeLocalDocker,
			TargetPaths:   []string{"src/"},
		})

		var quotaErr *domain.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		require.Len(t, f.store.deleted, 1)
		assert.Empty(t, f.store.jobs)
	})

	t.Run("gates remote sandbox on tier", func(t *testing.T) {
		f := newJobFixture()

		_, err := f.svc.Create(ctx, "u1", domain.TierPlus, CreateJobParams{
			ExecutionMode: domain.ExecutionModeRemoteSandbox,
			TargetPaths:   []string{"src/"},
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = f.svc.Create(ctx, "u1", domain.TierPro, CreateJobParams{
			ExecutionMode: domain.ExecutionModeRemoteSandbox,
			TargetPaths:   []string{"src/"},
		})
		assert.NoError(t, err)
	})

	t.Run("rejects a foreign project", func(t *testing.T) {
		f := newJobFixture()
		projectID := "p1"

		_, err := f.svc.Create(ctx, "u2", domain.TierFree, CreateJobParams{
			ProjectID:     &projectID,
			ExecutionMode: domain.ExecutionModeLocalDocker,
			TargetPaths:   []string{"src/"},
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestJobGet(t *testing.T) {
	ctx := context.Background()

	t.Run("joins the live heartbeat session", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusRefactoring})
		lastSeen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		deadline := lastSeen.Add(domain.HeartbeatGraceWindow)
		f.liveness.session = &domain.HeartbeatSession{
			JobID:           "j1",
			SessionID:       "sess-1",
			Status:          domain.HeartbeatGracePeriod,
			LastSeenAt:      lastSeen,
			GraceDeadlineAt: &deadline,
		}

		detail, err := f.svc.Get(ctx, "u1", "j1")
		require.NoError(t, err)

		require.NotNil(t, detail.HeartbeatStatus)
		assert.Equal(t, domain.HeartbeatGracePeriod, *detail.HeartbeatStatus)
		require.NotNil(t, detail.LastHeartbeatAt)
		assert.Equal(t, lastSeen, *detail.LastHeartbeatAt)
		require.NotNil(t, detail.GraceDeadlineAt)
		assert.Equal(t, deadline, *detail.GraceDeadlineAt)
	})

	t.Run("leaves liveness empty when no session exists", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusPending})

		detail, err := f.svc.Get(ctx, "u1", "j1")
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusPending, detail.Status)
		assert.Nil(t, detail.HeartbeatStatus)
		assert.Nil(t, detail.LastHeartbeatAt)
		assert.Nil(t, detail.GraceDeadlineAt)
	})

	t.Run("hides foreign jobs", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusPending})

		_, err := f.svc.Get(ctx, "u2", "j1")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestJobStart(t *testing.T) {
	ctx := context.Background()
	pending := func() *domain.Job {
		return &domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusPending, ExecutionMode: domain.ExecutionModeLocalDocker}
	}

	t.Run("starts a reserved pending job", func(t *testing.T) {
		f := newJobFixture(pending())
		require.NoError(t, f.quota.Reserve(ctx, "u1", "j1", 1, domain.TierFree))

		job, err := f.svc.Start(ctx, "u1", "j1", domain.SurfaceIDE)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusAnalyzing, job.Status)
		require.Len(t, f.engine.started, 1)
		assert.Equal(t, "j1", f.engine.started[0].JobID)
		require.Len(t, f.store.snapshots, 1)
		assert.Equal(t, domain.TierFree, f.store.snapshots[0].Tier)
	})

	t.Run("refuses without a reservation", func(t *testing.T) {
		f := newJobFixture(pending())

		_, err := f.svc.Start(ctx, "u1", "j1", domain.SurfaceIDE)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Empty(t, f.engine.started)
	})

	t.Run("refuses a non-pending job", func(t *testing.T) {
		job := pending()
		job.Status = domain.JobStatusRefactoring
		f := newJobFixture(job)

		_, err := f.svc.Start(ctx, "u1", "j1", domain.SurfaceIDE)

		var stateErr *domain.StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, domain.JobStatusRefactoring, stateErr.Current)
	})

	t.Run("leaves the job pending when the engine refuses", func(t *testing.T) {
		f := newJobFixture(pending())
		require.NoError(t, f.quota.Reserve(ctx, "u1", "j1", 1, domain.TierFree))
		f.engine.startErr = errors.New("frontend unavailable")

		_, err := f.svc.Start(ctx, "u1", "j1", domain.SurfaceIDE)

		var depErr *domain.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, domain.JobStatusPending, f.store.jobs["j1"].Status)
		assert.Empty(t, f.store.transitions)
	})

	t.Run("hides foreign jobs", func(t *testing.T) {
		f := newJobFixture(pending())

		_, err := f.svc.Start(ctx, "u2", "j1", domain.SurfaceIDE)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestJobCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels an active job", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusRefactoring})

		job, err := f.svc.Cancel(ctx, "u1", "j1", domain.SurfaceWeb)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Equal(t, []string{domain.FailureUserCancelled}, f.store.failures)
		assert.Equal(t, []string{"j1"}, f.engine.cancelled)
		assert.Equal(t, []string{"u1:j1:phase1"}, f.quota.released)
		require.Len(t, f.notifier.notifications, 1)
		assert.Equal(t, domain.NotificationJobFailed, f.notifier.notifications[0].Type)
	})

	t.Run("cancellation survives an engine failure", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusRefactoring})
		f.engine.cancelErr = errors.New("no such workflow")

		job, err := f.svc.Cancel(ctx, "u1", "j1", domain.SurfaceWeb)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, job.Status)
	})

	t.Run("refuses a terminal job", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusDelivered})

		_, err := f.svc.Cancel(ctx, "u1", "j1", domain.SurfaceWeb)

		var stateErr *domain.StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, domain.JobStatusDelivered, stateErr.Current)
	})

	t.Run("force terminate stamps its own reason", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusSelfHealing})

		_, err := f.svc.ForceTerminate(ctx, "u1", "j1", domain.SurfaceWeb)
		require.NoError(t, err)
		assert.Equal(t, []string{domain.FailureForceTerminated}, f.store.failures)
		assert.Equal(t, []string{"j1"}, f.engine.terminated)
	})
}

func TestJobUserDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("proposal selection requires the waiting status", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusWaitingStrategy})

		require.NoError(t, f.svc.SelectProposal(ctx, "u1", "j1", "prop-2", domain.SurfaceWeb))
		require.Len(t, f.engine.signals, 1)
		assert.Equal(t, SignalProposalSelected, f.engine.signals[0].name)
		require.Len(t, f.audit.events, 1)
		assert.Equal(t, "job.proposal_selected", f.audit.events[0].EventType)

		f2 := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusAnalyzing})
		err := f2.svc.SelectProposal(ctx, "u1", "j1", "prop-2", domain.SurfaceWeb)
		var stateErr *domain.StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Empty(t, f2.engine.signals)
	})

	t.Run("spec approval requires the waiting status", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusWaitingSpecApproval})

		require.NoError(t, f.svc.ApproveSpec(ctx, "u1", "j1", domain.SurfaceIDE))
		require.Len(t, f.engine.signals, 1)
		assert.Equal(t, SignalSpecApproved, f.engine.signals[0].name)
	})

	t.Run("deep fix resets attempts and reports the model upgrade", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusSelfHealing, AttemptCount: 4})

		upgraded, err := f.svc.DeepFix(ctx, "u1", "j1", domain.TierMax, domain.SurfaceWeb)
		require.NoError(t, err)
		assert.True(t, upgraded)
		assert.Equal(t, domain.JobStatusDeepFixActive, f.store.jobs["j1"].Status)
		assert.Zero(t, f.store.jobs["j1"].AttemptCount)

		require.Len(t, f.engine.signals, 1)
		assert.Equal(t, SignalInterventionAction, f.engine.signals[0].name)
	})

	t.Run("deep fix is refused outside remediation statuses", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusRefactoring})

		_, err := f.svc.DeepFix(ctx, "u1", "j1", domain.TierMax, domain.SurfaceWeb)
		var stateErr *domain.StateError
		require.ErrorAs(t, err, &stateErr)
	})
}

func TestJobAdvanceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a legal engine transition and notifies", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusRefactoring})

		require.NoError(t, f.svc.AdvanceStatus(ctx, "j1", domain.JobStatusDelivered))
		assert.Equal(t, domain.JobStatusDelivered, f.store.jobs["j1"].Status)
		require.Len(t, f.notifier.notifications, 1)
		assert.Equal(t, domain.NotificationJobDelivered, f.notifier.notifications[0].Type)
	})

	t.Run("delivery consumes the reservation", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusRefactoring})

		require.NoError(t, f.svc.AdvanceStatus(ctx, "j1", domain.JobStatusDelivered))
		assert.Equal(t, []string{"u1:j1:phase1"}, f.quota.consumed)
		assert.Empty(t, f.quota.released)
	})

	t.Run("fallback releases the reservation", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusSelfHealing})

		require.NoError(t, f.svc.AdvanceStatus(ctx, "j1", domain.JobStatusFallbackRequired))
		assert.Equal(t, []string{"u1:j1:phase1"}, f.quota.released)
		assert.Empty(t, f.quota.consumed)
	})

	t.Run("rejects an illegal transition", func(t *testing.T) {
		f := newJobFixture(&domain.Job{ID: "j1", OwnerID: "u1", Status: domain.JobStatusPending})

		err := f.svc.AdvanceStatus(ctx, "j1", domain.JobStatusDelivered)
		var stateErr *domain.StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Empty(t, f.notifier.notifications)
	})
}
