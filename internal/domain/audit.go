package domain

import "time"

// Surface identifies where a state-changing request originated.
type Surface string

const (
	SurfaceIDE    Surface = "IDE"
	SurfaceWeb    Surface = "WEB"
	SurfaceAPI    Surface = "API"
	SurfaceSystem Surface = "SYSTEM"
)

// AuditEvent is one row of the audit trail. Every state-changing operation
// writes exactly one, in the same transaction as the primary write.
type AuditEvent struct {
	ID        int64     `json:"id" db:"id"`
	ActorID   *string   `json:"actor_id,omitempty" db:"actor_id"`
	JobID     *string   `json:"job_id,omitempty" db:"job_id"`
	EventType string    `json:"event_type" db:"event_type"`
	OldState  *string   `json:"old_state,omitempty" db:"old_state"`
	NewState  *string   `json:"new_state,omitempty" db:"new_state"`
	Surface   Surface   `json:"surface" db:"surface"`
	Metadata  Metadata  `json:"metadata" db:"metadata"`
	IPAddress *string   `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StatusAudit builds an audit event for a job status transition.
func StatusAudit(actorID, jobID, eventType string, from, to JobStatus, surface Surface) AuditEvent {
	old := string(from)
	next := string(to)
	return AuditEvent{
		ActorID:   &actorID,
		JobID:     &jobID,
		EventType: eventType,
		OldState:  &old,
		NewState:  &next,
		Surface:   surface,
	}
}
