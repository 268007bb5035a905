package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/service"
)

// SpecHandler handles the spec revision endpoints.
type SpecHandler struct {
	specs *service.SpecService
}

// NewSpecHandler creates a new SpecHandler.
func NewSpecHandler(specs *service.SpecService) *SpecHandler {
	return &SpecHandler{specs: specs}
}

// Get returns the latest revision of a job's spec. The revision token in the
// response is what a subsequent write must present.
func (h *SpecHandler) Get(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	rev, err := h.specs.Read(c.Request().Context(), claims.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, rev)
}

type updateSpecRequest struct {
	RevisionToken  string           `json:"revision_token" validate:"required"`
	BehaviorItems  *domain.Snapshot `json:"behavior_items"`
	StructureItems *domain.Snapshot `json:"structure_items"`
}

// Update appends a new revision if the presented token is still current.
func (h *SpecHandler) Update(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req updateSpecRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.BehaviorItems == nil && req.StructureItems == nil {
		return fmt.Errorf("%w: at least one of behavior_items or structure_items is required", domain.ErrInvalidInput)
	}

	rev, err := h.specs.Write(c.Request().Context(), claims.UserID, c.Param("id"), req.RevisionToken, domain.SpecPatch{
		BehaviorItems:  req.BehaviorItems,
		StructureItems: req.StructureItems,
	}, requestSurface(c))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, rev)
}

type nlConvertRequest struct {
	Input         string `json:"input" validate:"required,max=8192"`
	Mode          string `json:"mode" validate:"required,oneof=behavior structure"`
	RevisionToken string `json:"revision_token" validate:"required"`
}

// NLConvert forwards a natural-language conversion request to the engine.
func (h *SpecHandler) NLConvert(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req nlConvertRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.specs.RequestNLConvert(c.Request().Context(), claims.UserID, c.Param("id"),
		req.Input, req.Mode, req.RevisionToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
