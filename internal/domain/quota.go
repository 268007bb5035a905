package domain

import (
	"fmt"
	"time"
)

// ReservationStatus represents the state of a quota reservation.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// QuotaReservation is one billing-relevant reservation row. At most one row
// exists per (user, job, phase) regardless of retries.
type QuotaReservation struct {
	ID             int64             `json:"id" db:"id"`
	UserID         string            `json:"user_id" db:"user_id"`
	JobID          string            `json:"job_id" db:"job_id"`
	Phase          int               `json:"phase" db:"phase"`
	Status         ReservationStatus `json:"status" db:"status"`
	IdempotencyKey string            `json:"idempotency_key" db:"idempotency_key"`
	LockOwner      string            `json:"lock_owner" db:"lock_owner"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// ReservationKey builds the deterministic idempotency key for a reservation.
func ReservationKey(userID, jobID string, phase int) string {
	return fmt.Sprintf("%s:%s:phase%d", userID, jobID, phase)
}
