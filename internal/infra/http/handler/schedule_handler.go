package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/logger"
	"github.com/leakwatch/gateway/pkg/validator"
)

// ScheduleHandler handles scheduler endpoints.
type ScheduleHandler struct {
	service   *app.ScheduleService
	phases    *app.PhasePoller
	validator *validator.Validator
	logger    *logger.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(svc *app.ScheduleService, phases *app.PhasePoller, v *validator.Validator, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		service:   svc,
		phases:    phases,
		validator: v,
		logger:    log.With("handler", "schedule"),
	}
}

// ScheduleListResponse wraps the definition list.
type ScheduleListResponse struct {
	Data  []scheduledjob.View `json:"data"`
	Count int                 `json:"count"`
}

// List handles GET /api/v1/scheduler/jobs
// @Summary      List scheduled jobs
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Param        with_phases  query  bool  false  "Include the current phase of active jobs"
// @Success      200  {object}  ScheduleListResponse
// @Router       /scheduler/jobs [get]
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	withPhases, _ := strconv.ParseBool(r.URL.Query().Get("with_phases"))
	views, err := h.service.List(r.Context(), withPhases)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if views == nil {
		views = []scheduledjob.View{}
	}
	writeJSON(w, http.StatusOK, ScheduleListResponse{Data: views, Count: len(views)})
}

// Get handles GET /api/v1/scheduler/jobs/{id}
// @Summary      Get scheduled job
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200  {object}  scheduledjob.View
// @Failure      400  {object}  apierror.Response
// @Failure      404  {object}  apierror.Response
// @Router       /scheduler/jobs/{id} [get]
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Create handles POST /api/v1/scheduler/jobs
// @Summary      Create scheduled job
// @Tags         Scheduler
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  scheduledjob.Request  true  "Definition"
// @Success      201  {object}  scheduledjob.View
// @Failure      422  {object}  apierror.Response
// @Router       /scheduler/jobs [post]
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	v, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Update handles PUT /api/v1/scheduler/jobs/{id}
// @Summary      Update scheduled job
// @Tags         Scheduler
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string                true  "Scheduled job ID"
// @Param        body  body  scheduledjob.Request  true  "Definition"
// @Success      200  {object}  scheduledjob.View
// @Failure      422  {object}  apierror.Response
// @Router       /scheduler/jobs/{id} [put]
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	v, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/v1/scheduler/jobs/{id}
// @Summary      Delete scheduled job
// @Tags         Scheduler
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200
// @Router       /scheduler/jobs/{id} [delete]
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	relayCommand(w, r, h.logger, h.service.Delete)
}

// RunNow handles POST /api/v1/scheduler/jobs/{id}/run-now
// @Summary      Fire a scheduled job immediately
// @Tags         Scheduler
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200
// @Router       /scheduler/jobs/{id}/run-now [post]
func (h *ScheduleHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	relayCommand(w, r, h.logger, h.service.RunNow)
}

// Pause handles POST /api/v1/scheduler/jobs/{id}/pause
// @Summary      Pause scheduled job
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200  {object}  scheduledjob.View
// @Router       /scheduler/jobs/{id}/pause [post]
func (h *ScheduleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Resume handles POST /api/v1/scheduler/jobs/{id}/resume
// @Summary      Resume scheduled job
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200  {object}  scheduledjob.View
// @Router       /scheduler/jobs/{id}/resume [post]
func (h *ScheduleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// History handles GET /api/v1/scheduler/jobs/{id}/history
// @Summary      Recent runs of a scheduled job
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200  {object}  scheduledjob.HistoryView
// @Router       /scheduler/jobs/{id}/history [get]
func (h *ScheduleHandler) History(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// NextRun handles GET /api/v1/scheduler/jobs/{id}/next-run
// @Summary      Next-run diagnostic
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scheduled job ID"
// @Success      200  {object}  app.NextRunView
// @Router       /scheduler/jobs/{id}/next-run [get]
func (h *ScheduleHandler) NextRun(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.NextRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Phases handles GET /api/v1/scheduler/phases
// @Summary      Latest run status per active scheduled job
// @Tags         Scheduler
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]string
// @Router       /scheduler/phases [get]
func (h *ScheduleHandler) Phases(w http.ResponseWriter, r *http.Request) {
	phases, err := h.service.Phases(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, phases)
}

// PhasesStream handles GET /api/v1/scheduler/phases/stream
// @Summary      Stream run status per active scheduled job
// @Description  Server-sent "phases" events, one per poll; "error" events when the authority cannot be read.
// @Tags         Scheduler
// @Produce      text/event-stream
// @Security     BearerAuth
// @Router       /scheduler/phases/stream [get]
func (h *ScheduleHandler) PhasesStream(w http.ResponseWriter, r *http.Request) {
	es, err := openEventStream(w)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("open event stream", "error", err)
		return
	}

	err = h.phases.Run(r.Context(), func(_ context.Context, ev app.PhaseEvent) error {
		return es.Send(ev.Name(), ev.Payload())
	})
	if err != nil && r.Context().Err() == nil {
		h.logger.WithContext(r.Context()).Debug("phase stream ended", "error", err)
	}
}

func (h *ScheduleHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (scheduledjob.Request, bool) {
	var req scheduledjob.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return req, false
	}
	if err := h.validator.Validate(req); err != nil {
		writeError(w, r, h.logger, validationError(err))
		return req, false
	}
	return req, true
}
