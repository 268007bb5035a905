package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")
)

// FieldViolation is one failed constraint on one request field.
type FieldViolation struct {
	Field   string
	Message string
}

// ValidationError reports every field-level failure of one request body, so
// the client can fix the whole form in a single round trip.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + " " + v.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// QuotaScope identifies which quota layer rejected a reservation.
type QuotaScope string

const (
	QuotaScopeDaily   QuotaScope = "DAILY"
	QuotaScopeMonthly QuotaScope = "MONTHLY"
)

// QuotaExceededError is returned when a reservation fails a quota layer.
// RetryAfter is set when the rejection window is known.
type QuotaExceededError struct {
	Scope      QuotaScope
	RetryAfter *time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded (%s)", e.Scope)
}

// StateError is returned when an operation is not legal for the job's current
// status. Current lets the caller resynchronize.
type StateError struct {
	Current JobStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("operation not allowed in status %s", e.Current)
}

// RevisionConflictError is returned when a spec write carries a stale
// revision token. CurrentToken is the true latest token at rejection time.
type RevisionConflictError struct {
	CurrentToken string
}

func (e *RevisionConflictError) Error() string {
	return "spec revision token mismatch"
}

// ServiceUnavailableError is returned while the kill switch is active.
type ServiceUnavailableError struct {
	Reason string
}

func (e *ServiceUnavailableError) Error() string {
	return "service unavailable: " + e.Reason
}

// DependencyError wraps a failure of an external collaborator (the execution
// engine) so callers can distinguish it from local state errors.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency failure during %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
