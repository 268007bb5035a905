package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/refinery-dev/refinery/internal/domain"
)

// JobStore is the data access consumed by JobService. Mutating methods take
// the audit event so the repository can write it atomically with the change.
type JobStore interface {
	FindByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, ownerID string, status *domain.JobStatus, limit, offset int) ([]domain.Job, int, error)
	Create(ctx context.Context, job *domain.Job, audit domain.AuditEvent) error
	Delete(ctx context.Context, id string) error
	Transition(ctx context.Context, jobID string, from, to domain.JobStatus, audit domain.AuditEvent) error
	MarkFailed(ctx context.Context, jobID, reason string, audit domain.AuditEvent) error
	EnterDeepFix(ctx context.Context, jobID string, from domain.JobStatus, audit domain.AuditEvent) error
	SaveEntitlementSnapshot(ctx context.Context, snap domain.EntitlementSnapshot) error
}

// SubscriptionReader reads the authoritative subscription for a user.
type SubscriptionReader interface {
	Active(ctx context.Context, userID string) (*domain.Subscription, error)
}

// QuotaGate reserves quota, answers whether a reservation exists, and settles
// reservations when the job reaches a terminal state.
type QuotaGate interface {
	Reserve(ctx context.Context, userID, jobID string, phase int, tier domain.Tier) error
	HasReservation(ctx context.Context, key string) (bool, error)
	Consume(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// LivenessReader reads the heartbeat session currently driving liveness for a
// job, or nil when there is none.
type LivenessReader interface {
	FindLive(ctx context.Context, jobID string) (*domain.HeartbeatSession, error)
}

// AuditWriter records a standalone audit event for operations whose durable
// state change is performed by the engine.
type AuditWriter interface {
	Write(ctx context.Context, ev domain.AuditEvent) error
}

// ProjectReader reads projects for ownership checks at job creation.
type ProjectReader interface {
	FindByID(ctx context.Context, id string) (*domain.Project, error)
}

// Notifier delivers in-app notifications. Delivery is best-effort; a failed
// insert never fails the operation that triggered it.
type Notifier interface {
	Insert(ctx context.Context, n domain.Notification) error
}

// CreateJobParams carries the accepted fields of a job creation request.
type CreateJobParams struct {
	ProjectID       *string
	ExecutionMode   domain.ExecutionMode
	TargetPaths     []string
	RefactorContext *string
	Surface         domain.Surface
}

// JobService owns the job lifecycle. Every transition verifies ownership and
// the current-status precondition before any mutation, and every mutation
// carries its audit record in the same transaction.
type JobService struct {
	jobs        JobStore
	subs        SubscriptionReader
	quota       QuotaGate
	audit       AuditWriter
	notifier    Notifier
	projects    ProjectReader
	liveness    LivenessReader
	engine      Engine
	artifactTTL time.Duration
}

// NewJobService creates a JobService.
func NewJobService(jobs JobStore, subs SubscriptionReader, quota QuotaGate, audit AuditWriter, notifier Notifier, projects ProjectReader, liveness LivenessReader, engine Engine, artifactTTL time.Duration) *JobService {
	return &JobService{
		jobs:        jobs,
		subs:        subs,
		quota:       quota,
		audit:       audit,
		notifier:    notifier,
		projects:    projects,
		liveness:    liveness,
		engine:      engine,
		artifactTTL: artifactTTL,
	}
}

// Create accepts a refactoring request, reserving quota for its first phase.
// A failed reservation unwinds the job row so no stray state survives.
func (s *JobService) Create(ctx context.Context, userID string, tier domain.Tier, p CreateJobParams) (*domain.Job, error) {
	if p.ExecutionMode == domain.ExecutionModeRemoteSandbox && !tier.AllowsRemoteSandbox() {
		return nil, fmt.Errorf("%w: remote sandbox requires the Pro tier or above", domain.ErrForbidden)
	}
	if p.ProjectID != nil {
		project, err := s.projects.FindByID(ctx, *p.ProjectID)
		if err != nil {
			return nil, err
		}
		if project.OwnerID != userID {
			return nil, domain.ErrForbidden
		}
	}

	expiry := time.Now().Add(s.artifactTTL)
	job := &domain.Job{
		ID:                uuid.NewString(),
		OwnerID:           userID,
		ProjectID:         p.ProjectID,
		Status:            domain.JobStatusPending,
		ExecutionMode:     p.ExecutionMode,
		TargetPaths:       p.TargetPaths,
		RefactorContext:   p.RefactorContext,
		ArtifactExpiresAt: &expiry,
	}

	if err := s.jobs.Create(ctx, job, domain.StatusAudit(userID, job.ID, "job.created", "", domain.JobStatusPending, p.Surface)); err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(ctx, userID, job.ID, 1, tier); err != nil {
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			slog.Error("failed to unwind job after quota rejection", "job_id", job.ID, "error", delErr)
		}
		return nil, err
	}

	slog.Info("job created", "job_id", job.ID, "user_id", userID, "tier", tier)
	return job, nil
}

// Get returns a job after verifying ownership, joined with the heartbeat
// session currently driving its liveness.
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*domain.JobDetail, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	detail := &domain.JobDetail{Job: *job}
	session, err := s.liveness.FindLive(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		detail.HeartbeatStatus = &session.Status
		detail.LastHeartbeatAt = &session.LastSeenAt
		detail.GraceDeadlineAt = session.GraceDeadlineAt
	}
	return detail, nil
}

// List returns the caller's jobs, newest first.
func (s *JobService) List(ctx context.Context, userID string, status *domain.JobStatus, limit, offset int) ([]domain.Job, int, error) {
	return s.jobs.List(ctx, userID, status, limit, offset)
}

// Start moves a PENDING job into analysis. The user's entitlements are
// snapshotted before the engine is started so later plan changes cannot
// alter an in-flight job's limits. If the engine cannot start, the job is
// left in its pre-start status.
func (s *JobService) Start(ctx context.Context, userID, jobID string, surface domain.Surface) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending {
		return nil, &domain.StateError{Current: job.Status}
	}

	reserved, err := s.quota.HasReservation(ctx, domain.ReservationKey(userID, jobID, 1))
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, fmt.Errorf("%w: job has no quota reservation", domain.ErrConflict)
	}

	tier := domain.TierFree
	operatingMode := domain.OperatingModeSimple
	contextCap := 128000
	if sub, err := s.subs.Active(ctx, userID); err != nil {
		return nil, err
	} else if sub != nil {
		tier = sub.Tier
		operatingMode = sub.OperatingMode
		contextCap = sub.ContextCap
	}

	if err := s.jobs.SaveEntitlementSnapshot(ctx, domain.EntitlementSnapshot{
		JobID:            jobID,
		UserID:           userID,
		Tier:             tier,
		OperatingMode:    operatingMode,
		ExecutionMode:    job.ExecutionMode,
		ContextCap:       contextCap,
		WebGitHubEnabled: tier == domain.TierEnterprise,
	}); err != nil {
		return nil, err
	}

	if err := s.engine.Start(ctx, StartParams{
		JobID:         jobID,
		UserID:        userID,
		Tier:          tier,
		ExecutionMode: job.ExecutionMode,
	}); err != nil {
		return nil, &domain.DependencyError{Op: "engine start", Err: err}
	}

	if err := s.jobs.Transition(ctx, jobID, domain.JobStatusPending, domain.JobStatusAnalyzing,
		domain.StatusAudit(userID, jobID, "job.started", domain.JobStatusPending, domain.JobStatusAnalyzing, surface)); err != nil {
		// A concurrent operation won the status race; the freshly started
		// run must not outlive the record that backs it.
		if cancelErr := s.engine.Cancel(ctx, jobID); cancelErr != nil {
			slog.Error("failed to cancel orphaned engine run", "job_id", jobID, "error", cancelErr)
		}
		return nil, err
	}

	job.Status = domain.JobStatusAnalyzing
	slog.Info("job started", "job_id", jobID, "tier", tier)
	return job, nil
}

// Cancel terminates a job from any non-terminal status. Cancellation of the
// backing run is advisory; the local transition is authoritative and
// succeeds regardless.
func (s *JobService) Cancel(ctx context.Context, userID, jobID string, surface domain.Surface) (*domain.Job, error) {
	return s.terminate(ctx, userID, jobID, surface, "job.cancelled", domain.FailureUserCancelled, func() error {
		return s.engine.Cancel(ctx, jobID)
	})
}

// ForceTerminate is Cancel with a harder stop on the engine side.
func (s *JobService) ForceTerminate(ctx context.Context, userID, jobID string, surface domain.Surface) (*domain.Job, error) {
	return s.terminate(ctx, userID, jobID, surface, "job.force_terminated", domain.FailureForceTerminated, func() error {
		return s.engine.Terminate(ctx, jobID, "Force terminated by user")
	})
}

func (s *JobService) terminate(ctx context.Context, userID, jobID string, surface domain.Surface, eventType, reason string, stop func() error) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, &domain.StateError{Current: job.Status}
	}

	if err := stop(); err != nil {
		// Absence of a backing run is not an error for the caller.
		slog.Warn("engine stop request failed", "job_id", jobID, "error", err)
	}

	if err := s.jobs.MarkFailed(ctx, jobID, reason,
		domain.StatusAudit(userID, jobID, eventType, job.Status, domain.JobStatusFailed, surface)); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatusFailed
	job.FailureReason = &reason
	s.releaseReservation(ctx, userID, jobID)
	s.notify(ctx, domain.Notification{
		UserID:  userID,
		JobID:   &jobID,
		Type:    domain.NotificationJobFailed,
		Title:   "Job stopped",
		Message: "The refactoring job was stopped at your request.",
	})
	return job, nil
}

// SelectProposal forwards the user's strategy choice to the engine. Legal
// only while the job waits for a strategy; the durable move to
// WAITING_SPEC_APPROVAL is performed by the engine's own status update.
func (s *JobService) SelectProposal(ctx context.Context, userID, jobID, proposalID string, surface domain.Surface) error {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusWaitingStrategy {
		return &domain.StateError{Current: job.Status}
	}

	if err := s.engine.Signal(ctx, jobID, SignalProposalSelected, map[string]string{"proposalId": proposalID}); err != nil {
		return &domain.DependencyError{Op: "proposal selection signal", Err: err}
	}

	return s.audit.Write(ctx, domain.StatusAudit(userID, jobID, "job.proposal_selected",
		domain.JobStatusWaitingStrategy, domain.JobStatusWaitingSpecApproval, surface))
}

// ApproveSpec forwards the user's spec approval to the engine. Legal only
// while the job waits for approval.
func (s *JobService) ApproveSpec(ctx context.Context, userID, jobID string, surface domain.Surface) error {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusWaitingSpecApproval {
		return &domain.StateError{Current: job.Status}
	}

	if err := s.engine.Signal(ctx, jobID, SignalSpecApproved, nil); err != nil {
		return &domain.DependencyError{Op: "spec approval signal", Err: err}
	}

	return s.audit.Write(ctx, domain.StatusAudit(userID, jobID, "job.spec_approved",
		domain.JobStatusWaitingSpecApproval, domain.JobStatusGeneratingTests, surface))
}

// DeepFix moves the job into the high-cost remediation mode, resetting the
// attempt counter and recording whether the tier entitles an upgraded
// processing class. Returns that entitlement.
func (s *JobService) DeepFix(ctx context.Context, userID, jobID string, tier domain.Tier, surface domain.Surface) (bool, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return false, err
	}
	if !domain.CanTransition(job.Status, domain.JobStatusDeepFixActive) {
		return false, &domain.StateError{Current: job.Status}
	}

	upgraded := tier.UpgradesModelOnDeepFix()
	audit := domain.StatusAudit(userID, jobID, "intervention.deep_fix", job.Status, domain.JobStatusDeepFixActive, surface)
	audit.Metadata = domain.Metadata{"model_upgraded": upgraded}
	if err := s.jobs.EnterDeepFix(ctx, jobID, job.Status, audit); err != nil {
		return false, err
	}

	if err := s.engine.Signal(ctx, jobID, SignalInterventionAction, map[string]any{
		"action":        "DEEP_FIX",
		"modelUpgraded": upgraded,
	}); err != nil {
		slog.Warn("deep fix signal failed", "job_id", jobID, "error", err)
	}

	return upgraded, nil
}

// InterventionCommand forwards a single user command into the engine's
// intervention loop and returns the generated command id.
func (s *JobService) InterventionCommand(ctx context.Context, userID, jobID, command string) (string, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return "", err
	}

	commandID := uuid.NewString()
	if err := s.engine.Signal(ctx, jobID, SignalInterventionAction, map[string]string{
		"action":    "COMMAND",
		"command":   command,
		"commandId": commandID,
	}); err != nil {
		return "", &domain.DependencyError{Op: "intervention command signal", Err: err}
	}
	return commandID, nil
}

// RunTests asks the engine to run the job's test suite during intervention
// and returns the generated test run id.
func (s *JobService) RunTests(ctx context.Context, userID, jobID string) (string, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return "", err
	}

	testRunID := uuid.NewString()
	if err := s.engine.Signal(ctx, jobID, SignalInterventionAction, map[string]string{
		"action":    "RUN_TESTS",
		"testRunId": testRunID,
	}); err != nil {
		return "", &domain.DependencyError{Op: "run tests signal", Err: err}
	}
	return testRunID, nil
}

// AdvanceStatus applies an engine-reported status update, enforcing the
// transition table. Used by the surface that consumes the engine's
// asynchronous updates.
func (s *JobService) AdvanceStatus(ctx context.Context, jobID string, to domain.JobStatus) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(job.Status, to) {
		return &domain.StateError{Current: job.Status}
	}

	audit := domain.StatusAudit("", jobID, "job.status_advanced", job.Status, to, domain.SurfaceSystem)
	audit.ActorID = nil
	if err := s.jobs.Transition(ctx, jobID, job.Status, to, audit); err != nil {
		return err
	}

	switch to {
	case domain.JobStatusDelivered:
		// Delivery settles the reservation as billed work.
		key := domain.ReservationKey(job.OwnerID, jobID, 1)
		if err := s.quota.Consume(ctx, key); err != nil {
			slog.Warn("reservation consume failed", "job_id", jobID, "error", err)
		}
	case domain.JobStatusFailed, domain.JobStatusFallbackRequired:
		s.releaseReservation(ctx, job.OwnerID, jobID)
	}

	if n, ok := statusNotification(job.OwnerID, jobID, to); ok {
		s.notify(ctx, n)
	}
	return nil
}

// releaseReservation returns the job's first-phase reservation to the pool.
// Settlement is advisory bookkeeping; a failure never undoes the transition
// that triggered it.
func (s *JobService) releaseReservation(ctx context.Context, userID, jobID string) {
	key := domain.ReservationKey(userID, jobID, 1)
	if err := s.quota.Release(ctx, key); err != nil {
		slog.Warn("reservation release failed", "job_id", jobID, "error", err)
	}
}

// statusNotification maps the statuses a user should hear about to an
// in-app notification.
func statusNotification(ownerID, jobID string, status domain.JobStatus) (domain.Notification, bool) {
	n := domain.Notification{UserID: ownerID, JobID: &jobID}
	switch status {
	case domain.JobStatusDelivered:
		n.Type = domain.NotificationJobDelivered
		n.Title = "Job delivered"
		n.Message = "Your refactoring job finished and its artifacts are ready."
	case domain.JobStatusFailed, domain.JobStatusFallbackRequired:
		n.Type = domain.NotificationJobFailed
		n.Title = "Job failed"
		n.Message = "Your refactoring job could not be completed."
	case domain.JobStatusWaitingIntervention:
		n.Type = domain.NotificationInterventionRequired
		n.Title = "Intervention needed"
		n.Message = "Your refactoring job is paused and needs your input."
	case domain.JobStatusWaitingSpecApproval:
		n.Type = domain.NotificationSpecApprovalNeeded
		n.Title = "Spec ready for review"
		n.Message = "A specification is waiting for your approval."
	default:
		return domain.Notification{}, false
	}
	return n, true
}

func (s *JobService) notify(ctx context.Context, n domain.Notification) {
	if err := s.notifier.Insert(ctx, n); err != nil {
		slog.Warn("notification insert failed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

func (s *JobService) ownedJob(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	return job, nil
}
