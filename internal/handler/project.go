package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/service"
)

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type createProjectRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	RepositoryURL *string `json:"repository_url" validate:"omitempty,url"`
	DefaultBranch string  `json:"default_branch" validate:"omitempty,max=200"`
}

// Create registers a project.
func (h *ProjectHandler) Create(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	project, err := h.projects.Create(c.Request().Context(), claims.UserID, service.CreateProjectParams{
		Name:          req.Name,
		RepositoryURL: req.RepositoryURL,
		DefaultBranch: req.DefaultBranch,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, project)
}

// Get returns one project.
func (h *ProjectHandler) Get(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	project, err := h.projects.Get(c.Request().Context(), claims.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, project)
}

// List returns the caller's projects.
func (h *ProjectHandler) List(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	projects, err := h.projects.List(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, projects)
}
