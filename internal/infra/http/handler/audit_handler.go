package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/leakwatch/gateway/pkg/apierror"
	"github.com/leakwatch/gateway/pkg/domain/audit"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/pagination"
)

// AuditHandler serves the command audit trail.
type AuditHandler struct {
	repo   audit.Repository
	logger *logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(repo audit.Repository, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		repo:   repo,
		logger: log.With("handler", "audit"),
	}
}

// List handles GET /api/v1/audit
// @Summary      List audited commands
// @Description  Newest first. Administrators only.
// @Tags         Audit
// @Produce      json
// @Security     BearerAuth
// @Param        actor          query  string  false  "Filter by username"
// @Param        resource_type  query  string  false  "job or scheduled_job"
// @Param        resource_id    query  string  false  "Filter by resource ID"
// @Param        since          query  string  false  "RFC3339 lower bound"
// @Param        skip           query  int     false  "Offset"
// @Param        limit          query  int     false  "Page size"  default(50)
// @Success      200  {object}  pagination.Result[audit.Record]
// @Failure      400  {object}  apierror.Response
// @Router       /audit [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		Actor:      strings.TrimSpace(q.Get("actor")),
		ResourceID: strings.TrimSpace(q.Get("resource_id")),
	}
	if rt := strings.TrimSpace(q.Get("resource_type")); rt != "" {
		filter.ResourceType = audit.ResourceType(rt)
		if !filter.ResourceType.IsValid() {
			writeError(w, r, h.logger, apierror.BadRequest("Invalid resource_type"))
			return
		}
	}
	if s := strings.TrimSpace(q.Get("since")); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, h.logger, apierror.BadRequest("since must be an RFC3339 timestamp"))
			return
		}
		filter.Since = &since
	}

	skip, err := parseQueryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := parseQueryInt(r, "limit", pagination.DefaultLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.repo.List(r.Context(), filter, pagination.New(skip, limit))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
