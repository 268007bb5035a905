package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// SpecStore is the data access consumed by SpecService. Latest and Insert
// take a queryer so the freshness check and the append share one exclusive
// transaction; InsertAudit joins that transaction.
type SpecStore interface {
	Latest(ctx context.Context, q sqlx.ExtContext, jobID string) (*domain.SpecRevision, error)
	LatestFromDB(ctx context.Context, jobID string) (*domain.SpecRevision, error)
	Insert(ctx context.Context, q sqlx.ExtContext, rev *domain.SpecRevision) error
	InsertAudit(ctx context.Context, q sqlx.ExtContext, ev domain.AuditEvent) error
}

// JobReader provides read access to jobs for ownership and status checks.
type JobReader interface {
	FindByID(ctx context.Context, id string) (*domain.Job, error)
}

// SpecService is the append-only, optimistic-concurrency ledger for job
// specification documents. Writers must prove freshness with the revision
// token they read; a stale token is rejected with the current token and no
// revision is created.
type SpecService struct {
	locker Locker
	store  SpecStore
	jobs   JobReader
	engine Engine
}

// NewSpecService creates a SpecService.
func NewSpecService(locker Locker, store SpecStore, jobs JobReader, engine Engine) *SpecService {
	return &SpecService{locker: locker, store: store, jobs: jobs, engine: engine}
}

// Read returns the latest revision of a job's spec.
func (s *SpecService) Read(ctx context.Context, userID, jobID string) (*domain.SpecRevision, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return nil, err
	}
	return s.store.LatestFromDB(ctx, jobID)
}

// Write appends a new revision if suppliedToken still names the latest one.
// Omitted patch fields default to the prior revision's snapshots. When the
// job is in an execution-active phase, the engine is notified so it can
// incorporate the edit; notification failure does not undo the write.
func (s *SpecService) Write(ctx context.Context, userID, jobID, suppliedToken string, patch domain.SpecPatch, surface domain.Surface) (*domain.SpecRevision, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	var created *domain.SpecRevision
	err = s.locker.WithExclusive(ctx, "spec:"+jobID, func(ctx context.Context, tx *sqlx.Tx) error {
		current, err := s.store.Latest(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if current.RevisionToken != suppliedToken {
			return &domain.RevisionConflictError{CurrentToken: current.RevisionToken}
		}

		rev := &domain.SpecRevision{
			JobID:             jobID,
			RevisionToken:     uuid.NewString(),
			ActorID:           &userID,
			Surface:           surface,
			BehaviorSnapshot:  current.BehaviorSnapshot,
			StructureSnapshot: current.StructureSnapshot,
		}
		if patch.BehaviorItems != nil {
			rev.BehaviorSnapshot = *patch.BehaviorItems
		}
		if patch.StructureItems != nil {
			rev.StructureSnapshot = *patch.StructureItems
		}

		if err := s.store.Insert(ctx, tx, rev); err != nil {
			return err
		}
		if err := s.store.InsertAudit(ctx, tx, domain.AuditEvent{
			ActorID:   &userID,
			JobID:     &jobID,
			EventType: "spec.updated",
			Surface:   surface,
			Metadata:  domain.Metadata{"revision_token": rev.RevisionToken},
		}); err != nil {
			return err
		}

		created = rev
		return nil
	})
	if err != nil {
		return nil, err
	}

	if executionActive(job.Status) {
		if err := s.engine.Signal(ctx, jobID, SignalSpecUpdated, map[string]string{"revisionId": created.ID}); err != nil {
			slog.Warn("spec update signal failed", "job_id", jobID, "error", err)
		}
	}

	return created, nil
}

// InitialRevision seeds the ledger for a job that has none. Used by the
// engine-facing surface when analysis produces the first spec document.
func (s *SpecService) InitialRevision(ctx context.Context, jobID string, behavior, structure domain.Snapshot) (*domain.SpecRevision, error) {
	var created *domain.SpecRevision
	err := s.locker.WithExclusive(ctx, "spec:"+jobID, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := s.store.Latest(ctx, tx, jobID); err == nil {
			return domain.ErrConflict
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		rev := &domain.SpecRevision{
			JobID:             jobID,
			RevisionToken:     uuid.NewString(),
			Surface:           domain.SurfaceSystem,
			BehaviorSnapshot:  behavior,
			StructureSnapshot: structure,
		}
		if err := s.store.Insert(ctx, tx, rev); err != nil {
			return err
		}
		if err := s.store.InsertAudit(ctx, tx, domain.AuditEvent{
			JobID:     &jobID,
			EventType: "spec.created",
			Surface:   domain.SurfaceSystem,
		}); err != nil {
			return err
		}
		created = rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RequestNLConvert forwards a natural-language conversion request to the
// engine. The converted items arrive asynchronously through the workflow.
func (s *SpecService) RequestNLConvert(ctx context.Context, userID, jobID, input, mode, revisionToken string) error {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return err
	}
	if err := s.engine.Signal(ctx, jobID, SignalNLConvertRequested, map[string]string{
		"input":         input,
		"mode":          mode,
		"revisionToken": revisionToken,
	}); err != nil {
		return &domain.DependencyError{Op: "nl-convert signal", Err: err}
	}
	return nil
}

func (s *SpecService) ownedJob(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	return job, nil
}

// executionActive reports whether the engine is actively producing changes
// for the job, meaning a spec edit must be signalled mid-run.
func executionActive(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusRefactoring, domain.JobStatusSelfHealing, domain.JobStatusDeepFixActive:
		return true
	}
	return false
}
