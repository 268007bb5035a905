package domain

import "time"

// HeartbeatStatus represents the liveness of a client session.
type HeartbeatStatus string

const (
	HeartbeatActive      HeartbeatStatus = "ACTIVE"
	HeartbeatGracePeriod HeartbeatStatus = "GRACE_PERIOD"
	HeartbeatLost        HeartbeatStatus = "LOST"
)

// Heartbeat policy constants. The send interval and grace window are enforced
// by the execution engine's timers; they are recorded here only so clients
// can be told what to expect.
const (
	HeartbeatInterval    = 60 * time.Second
	HeartbeatGraceWindow = 300 * time.Second
)

// HeartbeatSession is the liveness record for one client session attached to
// a job. (job_id, session_id) is unique.
type HeartbeatSession struct {
	ID              int64           `json:"id" db:"id"`
	JobID           string          `json:"job_id" db:"job_id"`
	SessionID       string          `json:"session_id" db:"session_id"`
	WorkflowRunID   string          `json:"workflow_run_id" db:"workflow_run_id"`
	Status          HeartbeatStatus `json:"status" db:"status"`
	LastSeenAt      time.Time       `json:"last_seen_at" db:"last_seen_at"`
	GraceDeadlineAt *time.Time      `json:"grace_deadline_at,omitempty" db:"grace_deadline_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}
