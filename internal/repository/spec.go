package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// SpecRepository handles the append-only spec revision ledger. The
// compare-and-swap write path runs on a caller-supplied queryer so the
// freshness check, the append, and the audit row share one transaction.
type SpecRepository struct {
	store *Store
}

// NewSpecRepository creates a SpecRepository.
func NewSpecRepository(store *Store) *SpecRepository {
	return &SpecRepository{store: store}
}

const specColumns = `id, job_id, revision_token, actor_id, surface,
	behavior_snapshot, structure_snapshot, created_at`

// Latest returns the most recent revision for a job, or ErrNotFound when the
// job has no revisions yet.
func (r *SpecRepository) Latest(ctx context.Context, q sqlx.ExtContext, jobID string) (*domain.SpecRevision, error) {
	var rev domain.SpecRevision
	err := sqlx.GetContext(ctx, q, &rev,
		`SELECT `+specColumns+` FROM spec_revisions
		 WHERE job_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find latest spec revision for job %s: %w", jobID, err)
	}
	return &rev, nil
}

// LatestFromDB reads the latest revision outside any transaction.
func (r *SpecRepository) LatestFromDB(ctx context.Context, jobID string) (*domain.SpecRevision, error) {
	return r.Latest(ctx, r.store.db, jobID)
}

// InsertAudit writes an audit row on the caller's transaction.
func (r *SpecRepository) InsertAudit(ctx context.Context, q sqlx.ExtContext, ev domain.AuditEvent) error {
	return InsertAudit(ctx, q, ev)
}

// Insert appends a revision row, filling in the generated id and timestamp.
func (r *SpecRepository) Insert(ctx context.Context, q sqlx.ExtContext, rev *domain.SpecRevision) error {
	err := sqlx.GetContext(ctx, q, rev,
		`INSERT INTO spec_revisions (job_id, revision_token, actor_id, surface, behavior_snapshot, structure_snapshot)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+specColumns,
		rev.JobID, rev.RevisionToken, rev.ActorID, rev.Surface,
		rev.BehaviorSnapshot, rev.StructureSnapshot)
	if err != nil {
		return fmt.Errorf("insert spec revision for job %s: %w", rev.JobID, err)
	}
	return nil
}
