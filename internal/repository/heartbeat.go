package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/refinery-dev/refinery/internal/domain"
)

// HeartbeatRepository handles client liveness records.
type HeartbeatRepository struct {
	store *Store
}

// NewHeartbeatRepository creates a HeartbeatRepository.
func NewHeartbeatRepository(store *Store) *HeartbeatRepository {
	return &HeartbeatRepository{store: store}
}

const heartbeatColumns = `id, job_id, session_id, workflow_run_id, status,
	last_seen_at, grace_deadline_at, created_at, updated_at`

// Touch upserts the session to ACTIVE, refreshing last-seen and clearing any
// pending grace deadline. Idempotent: repeated calls for the same
// (job, session) update the single existing row.
func (r *HeartbeatRepository) Touch(ctx context.Context, jobID, sessionID, workflowRunID string) (*domain.HeartbeatSession, error) {
	var session domain.HeartbeatSession
	err := r.store.db.GetContext(ctx, &session,
		`INSERT INTO client_heartbeat_sessions (job_id, session_id, workflow_run_id, status, last_seen_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (job_id, session_id) DO UPDATE
		   SET status = $4, last_seen_at = NOW(), grace_deadline_at = NULL, updated_at = NOW()
		 RETURNING `+heartbeatColumns,
		jobID, sessionID, workflowRunID, domain.HeartbeatActive)
	if err != nil {
		return nil, fmt.Errorf("touch heartbeat session %s/%s: %w", jobID, sessionID, err)
	}
	return &session, nil
}

// FindLive returns the session currently driving liveness for a job (ACTIVE
// or GRACE_PERIOD), or nil when there is none.
func (r *HeartbeatRepository) FindLive(ctx context.Context, jobID string) (*domain.HeartbeatSession, error) {
	var session domain.HeartbeatSession
	err := r.store.db.GetContext(ctx, &session,
		`SELECT `+heartbeatColumns+` FROM client_heartbeat_sessions
		 WHERE job_id = $1 AND status IN ($2, $3)
		 ORDER BY last_seen_at DESC LIMIT 1`,
		jobID, domain.HeartbeatActive, domain.HeartbeatGracePeriod)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find live heartbeat session for job %s: %w", jobID, err)
	}
	return &session, nil
}
