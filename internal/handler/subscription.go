package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/service"
)

// SubscriptionHandler handles subscription and usage endpoints.
type SubscriptionHandler struct {
	subs *service.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subs *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// Current returns the caller's subscription.
func (h *SubscriptionHandler) Current(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	sub, err := h.subs.Current(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, sub)
}

// Usage returns the caller's two-layer usage summary for the current cycle.
func (h *SubscriptionHandler) Usage(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	summary, err := h.subs.Usage(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, summary)
}

// JobUsage returns the usage rollup for one of the caller's jobs.
func (h *SubscriptionHandler) JobUsage(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	usage, err := h.subs.UsageForJob(c.Request().Context(), claims.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, usage)
}
