package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-dev/refinery/internal/domain"
)

func TestAppValidator(t *testing.T) {
	v := NewAppValidator()

	type form struct {
		Email       string   `json:"email" validate:"required,email"`
		Mode        string   `json:"mode" validate:"required,oneof=behavior structure"`
		TargetPaths []string `json:"target_paths" validate:"required,min=1"`
	}

	t.Run("passes a valid struct", func(t *testing.T) {
		require.NoError(t, v.Validate(&form{
			Email:       "dev@example.com",
			Mode:        "behavior",
			TargetPaths: []string{"src/"},
		}))
	})

	t.Run("reports every failing field under its json name", func(t *testing.T) {
		err := v.Validate(&form{Email: "not-an-email", Mode: "other"})

		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		require.Len(t, validationErr.Violations, 3)

		byField := map[string]string{}
		for _, violation := range validationErr.Violations {
			byField[violation.Field] = violation.Message
		}
		assert.Equal(t, "must be a valid email address", byField["email"])
		assert.Equal(t, "must be one of: behavior, structure", byField["mode"])
		assert.Equal(t, "is required", byField["target_paths"])
	})

	t.Run("renders size constraints with units", func(t *testing.T) {
		type sized struct {
			Name  string   `json:"name" validate:"max=3"`
			Paths []string `json:"paths" validate:"min=2"`
		}

		err := v.Validate(&sized{Name: "toolong", Paths: []string{"a"}})

		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		byField := map[string]string{}
		for _, violation := range validationErr.Violations {
			byField[violation.Field] = violation.Message
		}
		assert.Equal(t, "must contain at most 3 characters", byField["name"])
		assert.Equal(t, "must contain at least 2 items", byField["paths"])
	})

	t.Run("maps to a 400 with one entry per field", func(t *testing.T) {
		err := v.Validate(&form{Email: "dev@example.com", Mode: "behavior"})

		status, apiErr := mapError(err)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation_error", apiErr.Code)
		require.Len(t, apiErr.Fields, 1)
		assert.Equal(t, "target_paths", apiErr.Fields[0].Field)
	})
}
