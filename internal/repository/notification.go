package repository

import (
	"context"
	"fmt"

	"github.com/refinery-dev/refinery/internal/domain"
)

// NotificationRepository handles in-app notifications.
type NotificationRepository struct {
	store *Store
}

// NewNotificationRepository creates a NotificationRepository.
func NewNotificationRepository(store *Store) *NotificationRepository {
	return &NotificationRepository{store: store}
}

// Insert writes one notification.
func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, job_id, type, title, message)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.UserID, n.JobID, n.Type, n.Title, n.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForUser returns a user's notifications, newest first. unreadOnly
// restricts the result to unread rows.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id, user_id, job_id, type, title, message, read, created_at
	          FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	notifications := []domain.Notification{}
	if err := r.store.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications for user %s: %w", userID, err)
	}
	return notifications, nil
}

// MarkRead marks one notification read, owner-checked.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, id int64) error {
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAllRead marks all of a user's notifications read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return fmt.Errorf("mark notifications read for user %s: %w", userID, err)
	}
	return nil
}
