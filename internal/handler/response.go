package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any             `json:"data,omitempty"`
	Meta  *PaginationMeta `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// PaginationMeta holds offset pagination info.
type PaginationMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// APIError represents an error in the API response. Details carries
// error-specific resynchronization data such as the current status or the
// current revision token.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details any          `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

// JSONList writes a paginated JSON list response.
func JSONList(c echo.Context, status int, data any, meta PaginationMeta) error {
	return c.JSON(status, Envelope{Data: data, Meta: &meta})
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)
	if apiErr.Code == "quota_exceeded" {
		var quotaErr *domain.QuotaExceededError
		if errors.As(err, &quotaErr) && quotaErr.RetryAfter != nil {
			c.Response().Header().Set(echo.HeaderRetryAfter, quotaErr.RetryAfter.UTC().Format(http.TimeFormat))
		}
	}
	if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, APIError) {
	// Handle echo's own HTTP errors (404, 405, etc.)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{
			Code:    http.StatusText(echoErr.Code),
			Message: msg,
		}
	}

	var quotaErr *domain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		details := map[string]any{"scope": quotaErr.Scope}
		if quotaErr.RetryAfter != nil {
			details["retry_after"] = quotaErr.RetryAfter.UTC().Format(time.RFC3339)
		}
		return http.StatusTooManyRequests, APIError{
			Code:    "quota_exceeded",
			Message: "The quota for your plan has been reached",
			Details: details,
		}
	}

	var stateErr *domain.StateError
	if errors.As(err, &stateErr) {
		return http.StatusConflict, APIError{
			Code:    "invalid_state",
			Message: "The operation is not allowed in the job's current status",
			Details: map[string]any{"current_status": stateErr.Current},
		}
	}

	var revisionErr *domain.RevisionConflictError
	if errors.As(err, &revisionErr) {
		return http.StatusConflict, APIError{
			Code:    "revision_conflict",
			Message: "The spec was modified since it was read",
			Details: map[string]any{"current_revision_token": revisionErr.CurrentToken},
		}
	}

	var unavailableErr *domain.ServiceUnavailableError
	if errors.As(err, &unavailableErr) {
		return http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: unavailableErr.Reason,
		}
	}

	var depErr *domain.DependencyError
	if errors.As(err, &depErr) {
		slog.Error("engine dependency failure", "op", depErr.Op, "error", depErr.Err)
		return http.StatusBadGateway, APIError{
			Code:    "engine_unavailable",
			Message: "The execution engine did not accept the request",
		}
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		fields := make([]FieldError, 0, len(validationErr.Violations))
		for _, v := range validationErr.Violations {
			fields = append(fields, FieldError{Field: v.Field, Message: v.Message})
		}
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Fields:  fields,
		}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "Authentication is required",
		}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: "You do not have permission to perform this action",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: "The request body is invalid",
		}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, APIError{
			Code:    "conflict",
			Message: "The resource already exists or conflicts with current state",
		}
	default:
		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}
