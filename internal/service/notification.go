package service

import (
	"context"

	"github.com/refinery-dev/refinery/internal/domain"
)

// NotificationStore is the data access consumed by NotificationService.
type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService serves a user's in-app notification feed.
type NotificationService struct {
	store NotificationStore
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return s.store.ListForUser(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one notification read.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, id int64) error {
	return s.store.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every unread notification read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	return s.store.MarkAllRead(ctx, userID)
}
