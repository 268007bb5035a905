package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/refinery-dev/refinery/internal/domain"
)

// InsertAudit writes one audit_events row on the given queryer, which may be
// a transaction so the audit write shares the primary write's atomicity.
func InsertAudit(ctx context.Context, q sqlx.ExtContext, ev domain.AuditEvent) error {
	surface := ev.Surface
	if surface == "" {
		surface = domain.SurfaceAPI
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_events (actor_id, job_id, event_type, old_state, new_state, surface, metadata, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ActorID, ev.JobID, ev.EventType, ev.OldState, ev.NewState, surface, ev.Metadata, ev.IPAddress)
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", ev.EventType, err)
	}
	return nil
}

// AuditRepository handles audit trail access.
type AuditRepository struct {
	store *Store
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// Write records a standalone audit event outside any caller transaction.
func (r *AuditRepository) Write(ctx context.Context, ev domain.AuditEvent) error {
	return InsertAudit(ctx, r.store.db, ev)
}

// ListForJob returns the audit trail for one job, oldest first.
func (r *AuditRepository) ListForJob(ctx context.Context, jobID string) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	err := r.store.db.SelectContext(ctx, &events,
		`SELECT id, actor_id, job_id, event_type, old_state, new_state, surface, metadata, ip_address, created_at
		 FROM audit_events WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list audit events for job %s: %w", jobID, err)
	}
	return events, nil
}
