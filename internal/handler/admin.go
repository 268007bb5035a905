package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/repository"
	"github.com/refinery-dev/refinery/internal/service"
)

// AdminHandler exposes the dynamic configuration store and the per-job audit
// trail. All routes require the admin claim.
type AdminHandler struct {
	configs *repository.ConfigRepository
	audits  *repository.AuditRepository
	jobs    *service.JobService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(configs *repository.ConfigRepository, audits *repository.AuditRepository, jobs *service.JobService) *AdminHandler {
	return &AdminHandler{configs: configs, audits: audits, jobs: jobs}
}

// GetConfig returns one dynamic config entry.
func (h *AdminHandler) GetConfig(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return fmt.Errorf("%w: config key is required", domain.ErrInvalidInput)
	}

	cfg, err := h.configs.Get(c.Request().Context(), key)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, cfg)
}

type setConfigRequest struct {
	Value string `json:"value" validate:"required,max=4096"`
}

// SetConfig upserts one dynamic config entry. Changes to the kill-switch
// keys take effect within the cache TTL on every instance.
func (h *AdminHandler) SetConfig(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	key := c.Param("key")
	if key == "" {
		return fmt.Errorf("%w: config key is required", domain.ErrInvalidInput)
	}

	var req setConfigRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.configs.Set(c.Request().Context(), key, req.Value, claims.UserID); err != nil {
		return err
	}

	cfg, err := h.configs.Get(c.Request().Context(), key)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, cfg)
}

// JobAudit returns the full audit trail for a job, oldest first.
func (h *AdminHandler) JobAudit(c echo.Context) error {
	events, err := h.audits.ListForJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, events)
}

// AdvanceJobStatus applies an engine-reported status update. Used by the
// trusted consumer of the engine's asynchronous updates.
func (h *AdminHandler) AdvanceJobStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.jobs.AdvanceStatus(c.Request().Context(), c.Param("id"), domain.JobStatus(req.Status)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
