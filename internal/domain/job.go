package domain

import "time"

// JobStatus represents the lifecycle state of a refactor job.
type JobStatus string

const (
	JobStatusPending             JobStatus = "PENDING"
	JobStatusAnalyzing           JobStatus = "ANALYZING"
	JobStatusWaitingStrategy     JobStatus = "WAITING_STRATEGY"
	JobStatusWaitingSpecApproval JobStatus = "WAITING_SPEC_APPROVAL"
	JobStatusGeneratingTests     JobStatus = "GENERATING_TESTS"
	JobStatusBaselineValidation  JobStatus = "BASELINE_VALIDATION"
	JobStatusRefactoring         JobStatus = "REFACTORING"
	JobStatusSelfHealing         JobStatus = "SELF_HEALING"
	JobStatusWaitingIntervention JobStatus = "WAITING_INTERVENTION"
	JobStatusDeepFixActive       JobStatus = "DEEP_FIX_ACTIVE"
	JobStatusDelivered           JobStatus = "DELIVERED"
	JobStatusFailed              JobStatus = "FAILED"
	JobStatusFallbackRequired    JobStatus = "FALLBACK_REQUIRED"
)

// IsTerminal reports whether the status is final. Terminal jobs are immutable
// except for artifact-expiry bookkeeping.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDelivered, JobStatusFailed, JobStatusFallbackRequired:
		return true
	}
	return false
}

// ExecutionMode selects where the refactoring work runs.
type ExecutionMode string

const (
	ExecutionModeLocalDocker   ExecutionMode = "LOCAL_DOCKER"
	ExecutionModeLocalNative   ExecutionMode = "LOCAL_NATIVE"
	ExecutionModeRemoteSandbox ExecutionMode = "REMOTE_SANDBOX"
)

// Failure reasons stamped on user-initiated terminations.
const (
	FailureUserCancelled   = "USER_CANCELLED"
	FailureForceTerminated = "FORCE_TERMINATED_BY_USER"
)

// Job represents one refactoring request.
type Job struct {
	ID                        string         `json:"id" db:"id"`
	OwnerID                   string         `json:"owner_id" db:"owner_id"`
	ProjectID                 *string        `json:"project_id,omitempty" db:"project_id"`
	Status                    JobStatus      `json:"status" db:"status"`
	CurrentPhase              int            `json:"current_phase" db:"current_phase"`
	AttemptCount              int            `json:"attempt_count" db:"attempt_count"`
	IdenticalFailureCount     int            `json:"identical_failure_count" db:"identical_failure_count"`
	FailurePatternFingerprint *string        `json:"failure_pattern_fingerprint,omitempty" db:"failure_pattern_fingerprint"`
	ExecutionMode             ExecutionMode  `json:"execution_mode" db:"execution_mode"`
	TargetPaths               TextArray      `json:"target_paths" db:"target_paths"`
	RefactorContext           *string        `json:"refactor_context,omitempty" db:"refactor_context"`
	FailureReason             *string        `json:"failure_reason,omitempty" db:"failure_reason"`
	ArtifactExpiresAt         *time.Time     `json:"artifact_expires_at,omitempty" db:"artifact_expires_at"`
	CompletedAt               *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt                 time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at" db:"updated_at"`
}

// JobDetail is the single-job read model: the job row joined with the live
// heartbeat session, when one exists.
type JobDetail struct {
	Job
	HeartbeatStatus *HeartbeatStatus `json:"heartbeat_status,omitempty"`
	LastHeartbeatAt *time.Time       `json:"last_heartbeat_at,omitempty"`
	GraceDeadlineAt *time.Time       `json:"grace_deadline_at,omitempty"`
}

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusAnalyzing: true,
	},
	JobStatusAnalyzing: {
		JobStatusWaitingStrategy: true,
	},
	JobStatusWaitingStrategy: {
		JobStatusWaitingSpecApproval: true,
	},
	JobStatusWaitingSpecApproval: {
		JobStatusGeneratingTests: true,
	},
	JobStatusGeneratingTests: {
		JobStatusBaselineValidation: true,
	},
	JobStatusBaselineValidation: {
		JobStatusRefactoring: true,
	},
	JobStatusRefactoring: {
		JobStatusSelfHealing:         true,
		JobStatusWaitingIntervention: true,
		JobStatusDelivered:           true,
		JobStatusFallbackRequired:    true,
	},
	JobStatusSelfHealing: {
		JobStatusRefactoring:         true,
		JobStatusWaitingIntervention: true,
		JobStatusDeepFixActive:       true,
		JobStatusFallbackRequired:    true,
	},
	JobStatusWaitingIntervention: {
		JobStatusRefactoring:   true,
		JobStatusSelfHealing:   true,
		JobStatusDeepFixActive: true,
	},
	JobStatusDeepFixActive: {
		JobStatusRefactoring:         true,
		JobStatusWaitingIntervention: true,
		JobStatusDelivered:           true,
		JobStatusFallbackRequired:    true,
	},
}

// CanTransition reports whether a job may move from one status to another.
// Any non-terminal status may move to FAILED (cancellation is always legal).
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	if next, ok := allowedTransitions[from]; ok {
		return next[to]
	}
	return false
}
