// Package apierror provides the JSON error envelope returned by the gateway.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/leakwatch/gateway/pkg/domain/shared"
)

// Code represents an error code.
type Code string

// Error codes.
const (
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInternalError       Code = "INTERNAL_ERROR"
	CodeValidationFailed    Code = "VALIDATION_FAILED"
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamError       Code = "UPSTREAM_ERROR"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeTimeout             Code = "TIMEOUT"
)

// Error is an HTTP-facing error.
type Error struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`

	// Err is logged but never written to the client.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the wire envelope.
type Response struct {
	Error     string `json:"error"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToResponse converts the error to its envelope.
func (e *Error) ToResponse(requestID string) Response {
	return Response{
		Error:     string(e.Code),
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	}
}

// WriteJSON writes the error envelope.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	e.WriteJSONWithRequestID(w, "")
}

// WriteJSONWithRequestID writes the error envelope carrying the request id.
func (e *Error) WriteJSONWithRequestID(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.ToResponse(requestID))
}

// New creates a new API error.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithError attaches an internal cause.
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Access denied"
	}
	return New(http.StatusForbidden, CodeForbidden, message)
}

// NotFound creates a 404 error.
func NotFound(resource string) *Error {
	message := "Resource not found"
	if resource != "" {
		message = fmt.Sprintf("%s not found", resource)
	}
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// ValidationFailed creates a 422 error.
func ValidationFailed(message string, details any) *Error {
	return New(http.StatusUnprocessableEntity, CodeValidationFailed, message).WithDetails(details)
}

// InternalError creates a 500 error hiding err from the client.
func InternalError(err error) *Error {
	return New(http.StatusInternalServerError, CodeInternalError, "An internal error occurred").WithError(err)
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Rate limit exceeded")
}

// Timeout creates a 504 error.
func Timeout() *Error {
	return New(http.StatusGatewayTimeout, CodeTimeout, "Request timed out")
}

// Upstream relays a verdict from the authority with its original status and message.
func Upstream(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return New(status, CodeUpstreamError, message)
}

// UpstreamUnavailable creates a 502 error for an unreachable authority.
func UpstreamUnavailable(err error) *Error {
	return New(http.StatusBadGateway, CodeUpstreamUnavailable, "Authority temporarily unavailable").WithError(err)
}

// Relayed is implemented by errors carrying an upstream status and message.
type Relayed interface {
	error
	HTTPStatus() int
	Detail() string
}

// Unavailable is implemented by errors signalling the upstream could not be reached.
type Unavailable interface {
	error
	Unavailable() bool
}

// FromError maps any error onto an API error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var relayed Relayed
	if errors.As(err, &relayed) {
		return Upstream(relayed.HTTPStatus(), relayed.Detail()).WithError(err)
	}

	var unavailable Unavailable
	if errors.As(err, &unavailable) && unavailable.Unavailable() {
		return UpstreamUnavailable(err)
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		switch {
		case shared.IsValidation(err):
			return ValidationFailed(domainErr.Message, nil).WithError(err)
		case errors.Is(err, shared.ErrInvalidInput):
			return BadRequest(domainErr.Message).WithError(err)
		case shared.IsNotFound(err):
			return New(http.StatusNotFound, CodeNotFound, domainErr.Message).WithError(err)
		}
	}

	switch {
	case shared.IsValidation(err):
		return ValidationFailed("Validation failed", nil).WithError(err)
	case shared.IsNotFound(err):
		return NotFound("").WithError(err)
	case errors.Is(err, shared.ErrInvalidInput):
		return BadRequest("Invalid input").WithError(err)
	case errors.Is(err, shared.ErrConflict):
		return Conflict("Resource conflict").WithError(err)
	case errors.Is(err, shared.ErrForbidden):
		return Forbidden("").WithError(err)
	case errors.Is(err, shared.ErrUnauthorized):
		return Unauthorized("").WithError(err)
	}

	return InternalError(err)
}

// ValidationError is a single field failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Add appends a validation error.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// ToAPIError converts validation errors to an API error.
func (v ValidationErrors) ToAPIError() *Error {
	return ValidationFailed("Validation failed", v)
}

// SafeBadRequest creates a 400 error with a generic message, keeping err internal.
func SafeBadRequest(err error) *Error {
	return BadRequest("Invalid request").WithError(err)
}
