package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnavailable matches any failure to obtain a response from the authority.
var ErrUnavailable = errors.New("authority unavailable")

// UpstreamError is a non-success verdict returned by the authority. Status and
// Message are relayed to callers unchanged.
type UpstreamError struct {
	Operation string
	Status    int
	Message   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("authority %s: %d %s", e.Operation, e.Status, e.Message)
}

// HTTPStatus returns the authority's status code.
func (e *UpstreamError) HTTPStatus() int { return e.Status }

// Detail returns the authority's message.
func (e *UpstreamError) Detail() string { return e.Message }

// IsNotFound reports a 404 verdict.
func (e *UpstreamError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// UnavailableError wraps a transport failure or an unreadable response.
type UnavailableError struct {
	Operation string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("authority %s: %v", e.Operation, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) hold.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable marks the error as an upstream outage.
func (e *UnavailableError) Unavailable() bool { return true }

// StatusOf returns the status to report for err: the authority's own status for
// verdicts and 502 for outages.
func StatusOf(err error) int {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status
	}
	return http.StatusBadGateway
}

// parseUpstreamError extracts the authority's message from an error body. The
// authority reports {"detail": "..."}; validation failures carry a list instead.
func parseUpstreamError(op string, status int, body []byte) *UpstreamError {
	e := &UpstreamError{Operation: op, Status: status}

	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		var detail string
		switch {
		case len(envelope.Detail) > 0 && json.Unmarshal(envelope.Detail, &detail) == nil:
			e.Message = detail
		case len(envelope.Detail) > 0 && string(envelope.Detail) != "null":
			e.Message = string(envelope.Detail)
		case envelope.Message != "":
			e.Message = envelope.Message
		case envelope.Error != "":
			e.Message = envelope.Error
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
