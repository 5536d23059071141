// Package handler contains the gateway's HTTP handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/leakwatch/gateway/internal/infra/http/middleware"
	"github.com/leakwatch/gateway/pkg/apierror"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/validator"
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the error envelope. Server-side failures are
// logged; relayed authority verdicts and client errors are not.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	apiErr := apierror.FromError(err)
	if apiErr.Status >= http.StatusInternalServerError && apiErr.Code != apierror.CodeUpstreamError {
		log.WithContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", apiErr.Status,
			"error", err,
		)
	}
	apiErr.WriteJSONWithRequestID(w, middleware.GetRequestID(r.Context()))
}

// decodeJSON decodes the request body into dst. The caller writes nothing on
// failure; the returned error is already an API error.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apierror.New(http.StatusRequestEntityTooLarge, apierror.CodeBadRequest, "Request body too large").WithError(err)
		case errors.Is(err, io.EOF):
			return apierror.BadRequest("Request body is required")
		default:
			return apierror.BadRequest("Invalid request body").WithError(err)
		}
	}
	if dec.More() {
		return apierror.BadRequest("Request body must contain a single JSON object")
	}
	return nil
}

// validationError converts validator output into a 422 with field details.
func validationError(err error) error {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		return apierror.ValidationFailed("Validation failed", fields).WithError(err)
	}
	return apierror.ValidationFailed(err.Error(), nil).WithError(err)
}

// parseQueryInt parses a query parameter as an integer.
// An empty value yields defaultVal; a malformed one is an error.
func parseQueryInt(r *http.Request, name string, defaultVal int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, apierror.BadRequest("Query parameter " + name + " must be an integer")
	}
	return v, nil
}

// parseQueryBool parses a query parameter as a boolean.
func parseQueryBool(r *http.Request, name string, defaultVal bool) bool {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return v
}
