package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/metrics"
	"github.com/refinery-dev/refinery/internal/service"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobHandler handles job lifecycle endpoints.
type JobHandler struct {
	jobs       *service.JobService
	heartbeats *service.HeartbeatService
	metrics    *metrics.Metrics
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs *service.JobService, heartbeats *service.HeartbeatService, m *metrics.Metrics) *JobHandler {
	return &JobHandler{jobs: jobs, heartbeats: heartbeats, metrics: m}
}

type createJobRequest struct {
	ProjectID       *string  `json:"project_id"`
	ExecutionMode   string   `json:"execution_mode" validate:"required,oneof=LOCAL_DOCKER LOCAL_NATIVE REMOTE_SANDBOX"`
	TargetPaths     []string `json:"target_paths" validate:"required,min=1,dive,required"`
	RefactorContext *string  `json:"refactor_context"`
}

// Create accepts a refactoring job.
func (h *JobHandler) Create(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	job, err := h.jobs.Create(c.Request().Context(), claims.UserID, claims.Tier, service.CreateJobParams{
		ProjectID:       req.ProjectID,
		ExecutionMode:   domain.ExecutionMode(req.ExecutionMode),
		TargetPaths:     req.TargetPaths,
		RefactorContext: req.RefactorContext,
		Surface:         requestSurface(c),
	})
	if err != nil {
		h.countQuotaRejection(err)
		return err
	}

	h.metrics.JobsCreated.Inc()
	return JSON(c, http.StatusCreated, job)
}

// Get returns a single job.
func (h *JobHandler) Get(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	job, err := h.jobs.Get(c.Request().Context(), claims.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

// List returns the caller's jobs, newest first.
func (h *JobHandler) List(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	limit, offset := pageParams(c)

	var status *domain.JobStatus
	if s := c.QueryParam("status"); s != "" {
		st := domain.JobStatus(s)
		status = &st
	}

	jobs, total, err := h.jobs.List(c.Request().Context(), claims.UserID, status, limit, offset)
	if err != nil {
		return err
	}
	return JSONList(c, http.StatusOK, jobs, PaginationMeta{Total: total, Limit: limit, Offset: offset})
}

// Start hands a pending job to the execution engine.
func (h *JobHandler) Start(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	job, err := h.jobs.Start(c.Request().Context(), claims.UserID, c.Param("id"), requestSurface(c))
	if err != nil {
		return err
	}

	h.metrics.JobsStarted.Inc()
	return JSON(c, http.StatusOK, job)
}

// Cancel stops a job cooperatively.
func (h *JobHandler) Cancel(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	job, err := h.jobs.Cancel(c.Request().Context(), claims.UserID, c.Param("id"), requestSurface(c))
	if err != nil {
		return err
	}

	h.metrics.JobsTerminated.WithLabelValues("cancel").Inc()
	return JSON(c, http.StatusOK, job)
}

// ForceTerminate stops a job immediately.
func (h *JobHandler) ForceTerminate(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	job, err := h.jobs.ForceTerminate(c.Request().Context(), claims.UserID, c.Param("id"), requestSurface(c))
	if err != nil {
		return err
	}

	h.metrics.JobsTerminated.WithLabelValues("force").Inc()
	return JSON(c, http.StatusOK, job)
}

type selectProposalRequest struct {
	ProposalID string `json:"proposal_id" validate:"required"`
}

// SelectProposal records the user's strategy choice.
func (h *JobHandler) SelectProposal(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req selectProposalRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.jobs.SelectProposal(c.Request().Context(), claims.UserID, c.Param("id"), req.ProposalID, requestSurface(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// ApproveSpec records the user's approval of the current spec.
func (h *JobHandler) ApproveSpec(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	if err := h.jobs.ApproveSpec(c.Request().Context(), claims.UserID, c.Param("id"), requestSurface(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// DeepFix moves the job into the high-cost remediation mode.
func (h *JobHandler) DeepFix(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	upgraded, err := h.jobs.DeepFix(c.Request().Context(), claims.UserID, c.Param("id"), claims.Tier, requestSurface(c))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{"model_upgraded": upgraded})
}

type interventionCommandRequest struct {
	Command string `json:"command" validate:"required,max=4096"`
}

// InterventionCommand forwards a user command into the intervention loop.
func (h *JobHandler) InterventionCommand(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req interventionCommandRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	commandID, err := h.jobs.InterventionCommand(c.Request().Context(), claims.UserID, c.Param("id"), req.Command)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusAccepted, map[string]string{"command_id": commandID})
}

// RunTests asks the engine to run the job's test suite during intervention.
func (h *JobHandler) RunTests(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	testRunID, err := h.jobs.RunTests(c.Request().Context(), claims.UserID, c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusAccepted, map[string]string{"test_run_id": testRunID})
}

type heartbeatRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// heartbeatResponse returns the updated session along with the cadence the
// engine enforces, so clients learn the expected send interval and how long
// a silence is tolerated.
type heartbeatResponse struct {
	Session            *domain.HeartbeatSession `json:"session"`
	IntervalSeconds    int                      `json:"interval_seconds"`
	GraceWindowSeconds int                      `json:"grace_window_seconds"`
}

// Heartbeat records client liveness for a running job.
func (h *JobHandler) Heartbeat(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req heartbeatRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.heartbeats.Touch(c.Request().Context(), claims.UserID, c.Param("id"), req.SessionID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, heartbeatResponse{
		Session:            session,
		IntervalSeconds:    int(domain.HeartbeatInterval.Seconds()),
		GraceWindowSeconds: int(domain.HeartbeatGraceWindow.Seconds()),
	})
}

func (h *JobHandler) countQuotaRejection(err error) {
	var quotaErr *domain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		h.metrics.QuotaRejections.WithLabelValues(string(quotaErr.Scope)).Inc()
	}
}

// requestSurface maps the X-Client-Surface header to an audit surface,
// defaulting to the web app.
func requestSurface(c echo.Context) domain.Surface {
	switch c.Request().Header.Get("X-Client-Surface") {
	case "ide":
		return domain.SurfaceIDE
	case "api":
		return domain.SurfaceAPI
	default:
		return domain.SurfaceWeb
	}
}

func pageParams(c echo.Context) (limit, offset int) {
	limit = defaultPageLimit
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxPageLimit)
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
