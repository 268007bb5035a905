package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// JobRepository handles refactor job persistence. Status transitions and
// their audit rows are written in a single transaction; a transition that
// does not match the expected current status reports a StateError carrying
// the actual status instead of mutating anything.
type JobRepository struct {
	store *Store
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(store *Store) *JobRepository {
	return &JobRepository{store: store}
}

const jobColumns = `id, owner_id, project_id, status, current_phase, attempt_count,
	identical_failure_count, failure_pattern_fingerprint, execution_mode,
	target_paths, refactor_context, failure_reason, artifact_expires_at,
	completed_at, created_at, updated_at`

// FindByID retrieves a job by id.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	err := r.store.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM refactor_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return &job, nil
}

// List returns jobs owned by a user, newest first, with the total count.
func (r *JobRepository) List(ctx context.Context, ownerID string, status *domain.JobStatus, limit, offset int) ([]domain.Job, int, error) {
	where := `WHERE owner_id = $1`
	args := []any{ownerID}
	if status != nil {
		args = append(args, *status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int
	if err := r.store.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM refactor_jobs `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	args = append(args, limit, offset)
	jobs := []domain.Job{}
	err := r.store.db.SelectContext(ctx, &jobs,
		fmt.Sprintf(`SELECT `+jobColumns+` FROM refactor_jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

// Create inserts the job row and its audit event atomically.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job, audit domain.AuditEvent) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO refactor_jobs
			   (id, owner_id, project_id, status, execution_mode, target_paths, refactor_context, artifact_expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING created_at, updated_at`,
			job.ID, job.OwnerID, job.ProjectID, job.Status, job.ExecutionMode,
			job.TargetPaths, job.RefactorContext, job.ArtifactExpiresAt,
		).Scan(&job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return InsertAudit(ctx, tx, audit)
	})
}

// Delete removes a job row. Used only to unwind a creation whose quota
// reservation failed.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM refactor_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// Transition moves a job from one status to another, writing the audit row
// in the same transaction. The update is conditional on the current status so
// concurrent transitions cannot both win.
func (r *JobRepository) Transition(ctx context.Context, jobID string, from, to domain.JobStatus, audit domain.AuditEvent) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refactor_jobs SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
			to, jobID, from)
		if err != nil {
			return fmt.Errorf("transition job %s: %w", jobID, err)
		}
		if err := requireOneRow(ctx, tx, res, jobID); err != nil {
			return err
		}
		return InsertAudit(ctx, tx, audit)
	})
}

// MarkFailed terminates a job from any non-terminal status, stamping the
// failure reason and completion time.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID, reason string, audit domain.AuditEvent) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refactor_jobs
			 SET status = $1, failure_reason = $2, completed_at = NOW(), updated_at = NOW()
			 WHERE id = $3 AND status NOT IN ($4, $5, $6)`,
			domain.JobStatusFailed, reason, jobID,
			domain.JobStatusDelivered, domain.JobStatusFailed, domain.JobStatusFallbackRequired)
		if err != nil {
			return fmt.Errorf("mark job %s failed: %w", jobID, err)
		}
		if err := requireOneRow(ctx, tx, res, jobID); err != nil {
			return err
		}
		return InsertAudit(ctx, tx, audit)
	})
}

// EnterDeepFix moves a job into the high-cost remediation mode, resetting the
// attempt counter as part of the same write.
func (r *JobRepository) EnterDeepFix(ctx context.Context, jobID string, from domain.JobStatus, audit domain.AuditEvent) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refactor_jobs SET status = $1, attempt_count = 0, updated_at = NOW()
			 WHERE id = $2 AND status = $3`,
			domain.JobStatusDeepFixActive, jobID, from)
		if err != nil {
			return fmt.Errorf("enter deep fix for job %s: %w", jobID, err)
		}
		if err := requireOneRow(ctx, tx, res, jobID); err != nil {
			return err
		}
		return InsertAudit(ctx, tx, audit)
	})
}

// SaveEntitlementSnapshot records the entitlements in force at job start.
// Re-inserting for the same job is a no-op: the first snapshot wins.
func (r *JobRepository) SaveEntitlementSnapshot(ctx context.Context, snap domain.EntitlementSnapshot) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO entitlement_snapshots
		   (job_id, user_id, tier, operating_mode, execution_mode, context_cap, web_github_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_id) DO NOTHING`,
		snap.JobID, snap.UserID, snap.Tier, snap.OperatingMode, snap.ExecutionMode,
		snap.ContextCap, snap.WebGitHubEnabled)
	if err != nil {
		return fmt.Errorf("save entitlement snapshot for job %s: %w", snap.JobID, err)
	}
	return nil
}

// requireOneRow converts a zero-row conditional update into a StateError (or
// ErrNotFound when the job does not exist), re-reading the actual status so
// the caller can resynchronize.
func requireOneRow(ctx context.Context, tx *sqlx.Tx, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var current domain.JobStatus
	if err := tx.GetContext(ctx, &current,
		`SELECT status FROM refactor_jobs WHERE id = $1`, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("read job %s status: %w", jobID, err)
	}
	return &domain.StateError{Current: current}
}
