package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/service"
)

// NotificationHandler handles the in-app notification feed.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	limit, _ := pageParams(c)
	unreadOnly := c.QueryParam("unread") == "true"

	notifications, err := h.notifications.List(c.Request().Context(), claims.UserID, unreadOnly, limit)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, notifications)
}

// MarkRead marks one notification read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid notification id", domain.ErrInvalidInput)
	}

	if err := h.notifications.MarkRead(c.Request().Context(), claims.UserID, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead marks every unread notification read.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	if err := h.notifications.MarkAllRead(c.Request().Context(), claims.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
