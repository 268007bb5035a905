package domain

import "time"

// NotificationType represents the kind of notification.
type NotificationType string

const (
	NotificationJobDelivered         NotificationType = "job_delivered"
	NotificationJobFailed            NotificationType = "job_failed"
	NotificationInterventionRequired NotificationType = "intervention_required"
	NotificationSpecApprovalNeeded   NotificationType = "spec_approval_needed"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	ID        int64            `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	JobID     *string          `json:"job_id,omitempty" db:"job_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
