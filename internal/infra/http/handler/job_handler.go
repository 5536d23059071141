package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/apierror"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/pagination"
	"github.com/leakwatch/gateway/pkg/validator"
)

// JobHandler handles scan job endpoints.
type JobHandler struct {
	service   *app.JobService
	stream    *app.JobStream
	validator *validator.Validator
	logger    *logger.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(svc *app.JobService, stream *app.JobStream, v *validator.Validator, log *logger.Logger) *JobHandler {
	return &JobHandler{
		service:   svc,
		stream:    stream,
		validator: v,
		logger:    log.With("handler", "job"),
	}
}

// List handles GET /api/v1/jobs
// @Summary      List scan jobs
// @Tags         Jobs
// @Produce      json
// @Security     BearerAuth
// @Param        status  query  string  false  "Filter by status"
// @Param        skip    query  int     false  "Offset"
// @Param        limit   query  int     false  "Page size"  default(50)
// @Success      200  {object}  pagination.Result[scanjob.ScanJob]
// @Failure      422  {object}  apierror.Response
// @Router       /jobs [get]
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
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

	input := app.ListJobsInput{
		Status: r.URL.Query().Get("status"),
		Skip:   skip,
		Limit:  limit,
	}
	if err := h.validator.Validate(input); err != nil {
		writeError(w, r, h.logger, validationError(err))
		return
	}

	result, err := h.service.List(r.Context(), input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get handles GET /api/v1/jobs/{id}
// @Summary      Get scan job
// @Tags         Jobs
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Job ID"
// @Success      200  {object}  scanjob.ScanJob
// @Failure      404  {object}  apierror.Response
// @Router       /jobs/{id} [get]
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cancel handles POST /api/v1/jobs/{id}/cancel
// @Summary      Cancel scan job
// @Tags         Jobs
// @Security     BearerAuth
// @Param        id  path  string  true  "Job ID"
// @Success      200
// @Failure      409  {object}  apierror.Response
// @Router       /jobs/{id}/cancel [post]
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	relayCommand(w, r, h.logger, h.service.Cancel)
}

// Pause handles POST /api/v1/jobs/{id}/pause
// @Summary      Pause scan job
// @Tags         Jobs
// @Security     BearerAuth
// @Param        id  path  string  true  "Job ID"
// @Success      200
// @Failure      409  {object}  apierror.Response
// @Router       /jobs/{id}/pause [post]
func (h *JobHandler) Pause(w http.ResponseWriter, r *http.Request) {
	relayCommand(w, r, h.logger, h.service.Pause)
}

// Resume handles POST /api/v1/jobs/{id}/resume
// @Summary      Resume scan job
// @Tags         Jobs
// @Security     BearerAuth
// @Param        id  path  string  true  "Job ID"
// @Success      200
// @Failure      409  {object}  apierror.Response
// @Router       /jobs/{id}/resume [post]
func (h *JobHandler) Resume(w http.ResponseWriter, r *http.Request) {
	relayCommand(w, r, h.logger, h.service.Resume)
}

// Delete handles DELETE /api/v1/jobs/{id}
// @Summary      Delete scan job
// @Tags         Jobs
// @Security     BearerAuth
// @Param        id  path  string  true  "Job ID"
// @Success      200
// @Failure      404  {object}  apierror.Response
// @Router       /jobs/{id} [delete]
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	relayCommand(w, r, h.logger, h.service.Delete)
}

// ClearAll handles DELETE /api/v1/jobs
// @Summary      Delete every scan job
// @Tags         Jobs
// @Security     BearerAuth
// @Success      200
// @Router       /jobs [delete]
func (h *JobHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ClearAll(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stream handles GET /api/v1/jobs/{id}/stream
// @Summary      Stream scan job snapshots
// @Description  Server-sent events: "snapshot" every second, "error" for a failed poll.
// @Tags         Jobs
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id                 path   string  true   "Job ID"
// @Param        close_on_terminal  query  bool    false  "End the stream once the job is terminal"
// @Router       /jobs/{id}/stream [get]
func (h *JobHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, r, h.logger, apierror.BadRequest("Job id is required"))
		return
	}
	closeOnTerminal := parseQueryBool(r, "close_on_terminal", false)

	es, err := openEventStream(w)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("open event stream", "error", err)
		return
	}

	err = h.stream.Run(r.Context(), id, closeOnTerminal, func(_ context.Context, e app.JobEvent) error {
		return es.Send(string(e.Kind), e.Payload())
	})
	if err != nil && r.Context().Err() == nil {
		h.logger.WithContext(r.Context()).Debug("job stream ended", "job_id", id, "error", err)
	}
}

// commandFunc forwards one mutation for the id in the path.
type commandFunc func(ctx context.Context, id string) (*authority.CommandResult, error)

// relayCommand writes the authority's acknowledgement as received.
func relayCommand(w http.ResponseWriter, r *http.Request, log *logger.Logger, fn commandFunc) {
	res, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
