package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-dev/refinery/internal/domain"
)

func TestMapError(t *testing.T) {
	t.Run("quota exceeded carries scope and retry time", func(t *testing.T) {
		retryAt := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
		status, apiErr := mapError(&domain.QuotaExceededError{
			Scope:      domain.QuotaScopeDaily,
			RetryAfter: &retryAt,
		})

		assert.Equal(t, http.StatusTooManyRequests, status)
		assert.Equal(t, "quota_exceeded", apiErr.Code)
		details, ok := apiErr.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, domain.QuotaScopeDaily, details["scope"])
		assert.Equal(t, "2026-04-02T00:00:00Z", details["retry_after"])
	})

	t.Run("state error returns the current status", func(t *testing.T) {
		status, apiErr := mapError(&domain.StateError{Current: domain.JobStatusDelivered})

		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "invalid_state", apiErr.Code)
		details, ok := apiErr.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, domain.JobStatusDelivered, details["current_status"])
	})

	t.Run("revision conflict returns the current token", func(t *testing.T) {
		status, apiErr := mapError(&domain.RevisionConflictError{CurrentToken: "tok-7"})

		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "revision_conflict", apiErr.Code)
		details, ok := apiErr.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "tok-7", details["current_revision_token"])
	})

	t.Run("service unavailable surfaces the reason", func(t *testing.T) {
		status, apiErr := mapError(&domain.ServiceUnavailableError{Reason: "maintenance"})

		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "service_unavailable", apiErr.Code)
		assert.Equal(t, "maintenance", apiErr.Message)
	})

	t.Run("dependency failure maps to bad gateway", func(t *testing.T) {
		status, apiErr := mapError(&domain.DependencyError{Op: "engine start", Err: errors.New("dial refused")})

		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "engine_unavailable", apiErr.Code)
	})

	t.Run("sentinel errors map through wrapping", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{domain.ErrNotFound, http.StatusNotFound, "not_found"},
			{fmt.Errorf("job abc: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
			{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
			{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
			{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
			{domain.ErrConflict, http.StatusConflict, "conflict"},
		}
		for _, tc := range cases {
			status, apiErr := mapError(tc.err)
			assert.Equal(t, tc.status, status, tc.err)
			assert.Equal(t, tc.code, apiErr.Code, tc.err)
		}
	})

	t.Run("echo errors pass through their status", func(t *testing.T) {
		status, apiErr := mapError(echo.NewHTTPError(http.StatusNotFound))

		assert.Equal(t, http.StatusNotFound, status)
		assert.NotEmpty(t, apiErr.Message)
	})

	t.Run("unknown errors become internal", func(t *testing.T) {
		status, apiErr := mapError(errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "internal_error", apiErr.Code)
	})
}
