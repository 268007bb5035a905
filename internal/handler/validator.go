package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/refinery-dev/refinery/internal/domain"
)

// AppValidator adapts go-playground/validator for echo. Violations are
// reported under the field's JSON name, and every failing field is included
// so clients can fix a whole request in one round trip.
type AppValidator struct {
	validator *validator.Validate
}

// NewAppValidator creates a new AppValidator.
func NewAppValidator() *AppValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &AppValidator{validator: v}
}

// Validate implements echo.Validator.
func (v *AppValidator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	violations := make([]domain.FieldViolation, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		violations = append(violations, domain.FieldViolation{
			Field:   fe.Field(),
			Message: violationMessage(fe),
		})
	}
	return &domain.ValidationError{Violations: violations}
}

// violationMessage renders a constraint failure for an API client.
func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s", pluralParam(fe))
	case "max":
		return fmt.Sprintf("must contain at most %s", pluralParam(fe))
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed the %q constraint", fe.Tag())
	}
}

func pluralParam(fe validator.FieldError) string {
	unit := "characters"
	switch fe.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = "items"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fe.Param()
	}
	if fe.Param() == "1" {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fe.Param() + " " + unit
}
