// Package validator provides struct validation with the control plane's custom tags.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/domain/timefilter"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("time_filter", validateTimeFilter)
	_ = v.RegisterValidation("cron", validateCron)
	_ = v.RegisterValidation("keywords", validateKeywords)
	_ = v.RegisterValidation("job_status", validateJobStatus)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}
	return result
}

// Var validates a single value against tag.
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

func validateTimeFilter(fl validator.FieldLevel) bool {
	return timefilter.Valid(fl.Field().String())
}

func validateCron(fl validator.FieldLevel) bool {
	return scheduledjob.ParseCron(fl.Field().String()) == nil
}

// validateKeywords requires at least one non-blank keyword.
func validateKeywords(fl validator.FieldLevel) bool {
	kws, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	return len(scheduledjob.NormalizeKeywords(kws)) > 0
}

func validateJobStatus(fl validator.FieldLevel) bool {
	return scanjob.ParseStatus(fl.Field().String()).IsKnown()
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "timezone":
		return "must be a valid IANA timezone"
	case "time_filter":
		return fmt.Sprintf("must be one of: %s (or 24h, 7d, 30d, 90d, 365d)", formatTimeFilters())
	case "cron":
		return "must be a valid five-field cron expression"
	case "keywords":
		return "At least one keyword is required"
	case "job_status":
		return "must be a known job status"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

func formatTimeFilters() string {
	codes := timefilter.All()
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return strings.Join(out, ", ")
}
