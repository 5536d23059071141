// Package authoritytest provides an in-memory authority for tests.
package authoritytest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/domain/shared"
)

type failure struct {
	method string
	path   string
	status int
	detail string
}

// Server is an httptest server that applies the authority's job and scheduler
// policies to in-memory state.
type Server struct {
	*httptest.Server

	clock clock.Clock

	mu        sync.Mutex
	jobs      map[string]*scanjob.ScanJob
	schedules map[string]*scheduledjob.ScheduledJob
	history   map[string][]scanjob.ScanJob
	failures  []failure
	calls     map[string]int
	tokens    []string
}

// New starts a fake authority that is closed when the test ends.
func New(t testing.TB, clk clock.Clock) *Server {
	t.Helper()
	if clk == nil {
		clk = clock.Real()
	}
	s := &Server{
		clock:     clk,
		jobs:      make(map[string]*scanjob.ScanJob),
		schedules: make(map[string]*scheduledjob.ScheduledJob),
		history:   make(map[string][]scanjob.ScanJob),
		calls:     make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Delete("/", s.clearJobs)
		r.Get("/{id}", s.getJob)
		r.Delete("/{id}", s.deleteJob)
		r.Post("/{id}/cancel", s.cancelJob)
		r.Post("/{id}/pause", s.pauseJob)
		r.Post("/{id}/resume", s.resumeJob)
	})

	r.Route("/api/scheduler/jobs", func(r chi.Router) {
		r.Get("/", s.listSchedules)
		r.Post("/", s.createSchedule)
		r.Put("/{id}", s.updateSchedule)
		r.Delete("/{id}", s.deleteSchedule)
		r.Post("/{id}/run-now", s.runNow)
		r.Post("/{id}/pause", s.pauseSchedule)
		r.Post("/{id}/resume", s.resumeSchedule)
		r.Get("/{id}/history", s.scheduleHistory)
		r.Get("/{id}/next-run", s.nextRun)
	})
	return r
}

// record counts calls, captures bearer tokens and applies injected failures.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, "/")

		s.mu.Lock()
		s.calls[r.Method+" "+path]++
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			s.tokens = append(s.tokens, token)
		}
		var injected *failure
		for i, f := range s.failures {
			if f.method == r.Method && f.path == path {
				injected = &f
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				break
			}
		}
		s.mu.Unlock()

		if injected != nil {
			writeDetail(w, injected.status, injected.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next request matching method and path answer with status.
func (s *Server) FailNext(method, path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{
		method: method,
		path:   strings.TrimSuffix(path, "/"),
		status: status,
		detail: detail,
	})
}

// Calls returns how many requests hit method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+strings.TrimSuffix(path, "/")]
}

// Tokens returns every bearer token received, in order.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// AddJob stores a job snapshot.
func (s *Server) AddJob(j scanjob.ScanJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.clock.Now().UTC()
	}
	s.jobs[j.ID] = &j
}

// SetJobStatus moves a job to status without policy checks, as the worker does.
func (s *Server) SetJobStatus(id string, status scanjob.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = status
		j.RawStatus = string(status)
	}
}

// Job returns a copy of a stored job.
func (s *Server) Job(id string) (scanjob.ScanJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return scanjob.ScanJob{}, false
	}
	return *j, true
}

// AddSchedule stores a definition.
func (s *Server) AddSchedule(j scheduledjob.ScheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	s.schedules[j.ID] = &j
}

// Schedule returns a copy of a stored definition.
func (s *Server) Schedule(id string) (scheduledjob.ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.schedules[id]
	if !ok {
		return scheduledjob.ScheduledJob{}, false
	}
	return *j, true
}

// AddHistory records finished firings for a definition.
func (s *Server) AddHistory(scheduleID string, runs ...scanjob.ScanJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range runs {
		s.history[scheduleID] = append(s.history[scheduleID], run)
		if sj, ok := s.schedules[scheduleID]; ok {
			sj.RecordRun(scheduledjob.EntryFromJob(scheduleID, run))
		}
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if skip < 0 || limit < 1 || limit > 200 {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid pagination")
		return
	}
	status := r.URL.Query().Get("status")

	s.mu.Lock()
	out := make([]scanjob.ScanJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if status != "" && j.RawStatus != status && string(j.Status) != status {
			continue
		}
		out = append(out, *j)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.Job(chi.URLParam(r, "id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// mutateJob runs fn against a stored job under the lock.
func (s *Server) mutateJob(w http.ResponseWriter, r *http.Request, fn func(j *scanjob.ScanJob) (int, any)) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	status, body := fn(j)
	s.mu.Unlock()
	writeJSON(w, status, body)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	s.mutateJob(w, r, func(j *scanjob.ScanJob) (int, any) {
		wasQueued := j.Status == scanjob.StatusQueued
		if err := j.Cancel(now); err != nil {
			if errors.Is(err, scanjob.ErrAlreadyFinished) {
				return conflict(fmt.Sprintf("Job already finished (status: %s)", j.Status))
			}
			return conflict(fmt.Sprintf("Job in non-cancellable phase: %s", j.Status))
		}
		if wasQueued {
			return http.StatusOK, map[string]any{"message": "Job cancelled", "job_id": j.ID, "removed_from_queue": true}
		}
		return http.StatusOK, map[string]any{"message": "Cancellation requested", "job_id": j.ID, "status": j.Status}
	})
}

func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	s.mutateJob(w, r, func(j *scanjob.ScanJob) (int, any) {
		if err := j.Pause(); err != nil {
			switch {
			case errors.Is(err, scanjob.ErrAlreadyPaused):
				return conflict("Job already paused")
			case errors.Is(err, scanjob.ErrAlreadyFinished):
				return conflict(fmt.Sprintf("Job already finished (status: %s)", j.Status))
			case j.Status == scanjob.StatusQueued || j.Status == scanjob.StatusParsing || j.Status == scanjob.StatusUpserting:
				return conflict(fmt.Sprintf("Job in non-pausable phase: %s", j.Status))
			default:
				return conflict(fmt.Sprintf("Cannot pause job in status: %s", j.Status))
			}
		}
		return http.StatusOK, map[string]any{"message": "Job paused", "job_id": j.ID, "status": j.Status}
	})
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	s.mutateJob(w, r, func(j *scanjob.ScanJob) (int, any) {
		current := j.Status
		if err := j.Resume(); err != nil {
			return conflict(fmt.Sprintf("Job is not paused (current status: %s)", current))
		}
		return http.StatusOK, map[string]any{"message": "Job resumed", "job_id": j.ID, "status": j.Status}
	})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Job deleted successfully", "job_id": id})
}

func (s *Server) clearJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	count := len(s.jobs)
	s.jobs = make(map[string]*scanjob.ScanJob)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       fmt.Sprintf("Deleted %d jobs successfully", count),
		"deleted_count": count,
	})
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]scheduledjob.ScheduledJob, 0, len(s.schedules))
	for _, j := range s.schedules {
		out = append(out, *j)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (scheduledjob.Request, bool) {
	var req scheduledjob.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return req, false
	}
	if err := req.Normalize(); err != nil {
		var de *shared.DomainError
		msg := err.Error()
		if errors.As(err, &de) {
			msg = de.Message
		}
		writeDetail(w, http.StatusUnprocessableEntity, msg)
		return req, false
	}
	return req, true
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	now := s.clock.Now()
	sj, err := scheduledjob.New(uuid.NewString(), req, now)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	s.arm(sj)
	s.schedules[sj.ID] = sj
	if req.ShouldRunImmediately() {
		s.fire(sj)
	}
	out := *sj
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// lookupSchedule validates the id and returns the stored definition with the
// lock held. The caller must unlock when ok is true.
func (s *Server) lookupSchedule(w http.ResponseWriter, r *http.Request) (*scheduledjob.ScheduledJob, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid job_id")
		return nil, false
	}
	s.mu.Lock()
	sj, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Scheduled job not found")
		return nil, false
	}
	return sj, true
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	_ = sj.Apply(req, s.clock.Now())
	if sj.IsActive {
		s.arm(sj)
	}
	out := *sj
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	delete(s.schedules, sj.ID)
	delete(s.history, sj.ID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": sj.ID})
}

func (s *Server) runNow(w http.ResponseWriter, r *http.Request) {
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	s.fire(sj)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "id": sj.ID})
}

func (s *Server) pauseSchedule(w http.ResponseWriter, r *http.Request) {
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	sj.Pause(s.clock.Now())
	out := *sj
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resumeSchedule(w http.ResponseWriter, r *http.Request) {
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	sj.Resume(s.clock.Now())
	s.arm(sj)
	out := *sj
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) scheduleHistory(w http.ResponseWriter, r *http.Request) {
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	runs := append([]scanjob.ScanJob(nil), s.history[sj.ID]...)
	name := sj.Name
	s.mu.Unlock()

	sort.SliceStable(runs, func(i, k int) bool { return runs[i].CreatedAt.After(runs[k].CreatedAt) })
	if len(runs) > scheduledjob.HistoryLimit {
		runs = runs[:scheduledjob.HistoryLimit]
	}
	writeJSON(w, http.StatusOK, scheduledjob.History{
		ScheduledJobID:   sj.ID,
		ScheduledJobName: name,
		History:          runs,
	})
}

func (s *Server) nextRun(w http.ResponseWriter, r *http.Request) {
	sj, ok := s.lookupSchedule(w, r)
	if !ok {
		return
	}
	out := map[string]any{
		"scheduled_job_id":  sj.ID,
		"name":              sj.Name,
		"db_next_run":       nil,
		"aps_next_run":      nil,
		"scheduler_running": true,
		"timezone":          sj.Timezone,
		"schedule":          sj.Schedule,
	}
	if sj.IsActive && sj.NextRun != nil {
		ts := clock.FormatTimestamp(*sj.NextRun)
		out["db_next_run"] = ts
		out["aps_next_run"] = ts
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// arm sets the next firing of an active definition. Caller holds the lock.
func (s *Server) arm(sj *scheduledjob.ScheduledJob) {
	sj.NextRun = nil
	if next, ok := scheduledjob.NextOccurrence(sj.Schedule, s.clock.Now(), sj.Location()); ok {
		next = next.UTC()
		sj.NextRun = &next
	}
}

// fire queues one run per keyword. Caller holds the lock.
func (s *Server) fire(sj *scheduledjob.ScheduledJob) {
	now := s.clock.Now().UTC()
	for _, kw := range sj.Keywords {
		run, err := scanjob.New(uuid.NewString(), scanjob.JobTypeSingle,
			fmt.Sprintf("Scheduled: %s - %s", sj.Name, kw), kw, now)
		if err != nil {
			continue
		}
		run.TimeFilter = string(sj.TimeFilter)
		s.jobs[run.ID] = run
		s.history[sj.ID] = append(s.history[sj.ID], *run)
	}
	sj.LastRun = &now
}

func conflict(detail string) (int, any) {
	return http.StatusConflict, map[string]string{"detail": detail}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
