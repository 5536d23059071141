// Package authority is the HTTP client for the collection engine that owns
// job and schedule state. Every call forwards the caller's bearer token and
// mutations are sent exactly once.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leakwatch/gateway/internal/metrics"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/logger"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "leakwatch-gateway/1.0"
	maxBodySize      = 4 << 20
)

// Config configures the client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HealthPath string
	Transport  http.RoundTripper
}

// Client talks to the authority.
type Client struct {
	baseURL    string
	healthPath string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a client.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if log == nil {
		log = logger.NewNop()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		healthPath: cfg.HealthPath,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Transport: transport},
		logger:     log.With("component", "authority"),
	}
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token set by WithToken.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// CommandResult is the authority's acknowledgement of a mutation. Raw holds
// the body exactly as received.
type CommandResult struct {
	Message      string `json:"message,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	ID           string `json:"id,omitempty"`
	Status       string `json:"status,omitempty"`
	DeletedCount *int   `json:"deleted_count,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// MarshalJSON relays the original body when there is one.
func (r CommandResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type plain CommandResult
	return json.Marshal(plain(r))
}

// JobFilter selects jobs for ListJobs.
type JobFilter struct {
	Status string
	Skip   int
	Limit  int
}

// NextRunInfo is the authority's next-run diagnostic for a definition.
type NextRunInfo struct {
	ScheduledJobID   string  `json:"scheduled_job_id"`
	Name             string  `json:"name"`
	DBNextRun        *string `json:"db_next_run"`
	APSNextRun       *string `json:"aps_next_run"`
	SchedulerRunning bool    `json:"scheduler_running"`
	Timezone         string  `json:"timezone"`
	Schedule         string  `json:"schedule"`
}

// ListJobs returns jobs newest first.
func (c *Client) ListJobs(ctx context.Context, f JobFilter) ([]scanjob.ScanJob, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(f.Skip))
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	var out []scanjob.ScanJob
	if err := c.call(ctx, "list_jobs", http.MethodGet, "/api/jobs/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob returns one job.
func (c *Client) GetJob(ctx context.Context, id string) (*scanjob.ScanJob, error) {
	var out scanjob.ScanJob
	if err := c.call(ctx, "get_job", http.MethodGet, jobPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelJob requests cancellation.
func (c *Client) CancelJob(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, "cancel_job", http.MethodPost, jobPath(id)+"/cancel", nil)
}

// PauseJob requests a pause.
func (c *Client) PauseJob(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, "pause_job", http.MethodPost, jobPath(id)+"/pause", nil)
}

// ResumeJob resumes a paused job.
func (c *Client) ResumeJob(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, "resume_job", http.MethodPost, jobPath(id)+"/resume", nil)
}

// DeleteJob deletes a job in any status.
func (c *Client) DeleteJob(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, "delete_job", http.MethodDelete, jobPath(id), nil)
}

// ClearJobs deletes every job.
func (c *Client) ClearJobs(ctx context.Context) (*CommandResult, error) {
	return c.command(ctx, "clear_jobs", http.MethodDelete, "/api/jobs/", nil)
}

// ListSchedules returns every definition.
func (c *Client) ListSchedules(ctx context.Context) ([]scheduledjob.ScheduledJob, error) {
	var out []scheduledjob.ScheduledJob
	if err := c.call(ctx, "list_schedules", http.MethodGet, "/api/scheduler/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSchedule creates a definition.
func (c *Client) CreateSchedule(ctx context.Context, req scheduledjob.Request) (*scheduledjob.ScheduledJob, error) {
	var out scheduledjob.ScheduledJob
	if err := c.call(ctx, "create_schedule", http.MethodPost, "/api/scheduler/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSchedule replaces a definition's editable fields.
func (c *Client) UpdateSchedule(ctx context.Context, id string, req scheduledjob.Request) (*scheduledjob.ScheduledJob, error) {
	var out scheduledjob.ScheduledJob
	if err := c.call(ctx, "update_schedule", http.MethodPut, schedulePath(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSchedule removes a definition.
func (c *Client) DeleteSchedule(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, "delete_schedule", http.MethodDelete, schedulePath(id), nil)
}

// RunScheduleNow queues an immediate firing.
func (c *Client) RunScheduleNow(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, "run_schedule", http.MethodPost, schedulePath(id)+"/run-now", nil)
}

// PauseSchedule deactivates a definition.
func (c *Client) PauseSchedule(ctx context.Context, id string) (*scheduledjob.ScheduledJob, error) {
	var out scheduledjob.ScheduledJob
	if err := c.call(ctx, "pause_schedule", http.MethodPost, schedulePath(id)+"/pause", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResumeSchedule reactivates a definition.
func (c *Client) ResumeSchedule(ctx context.Context, id string) (*scheduledjob.ScheduledJob, error) {
	var out scheduledjob.ScheduledJob
	if err := c.call(ctx, "resume_schedule", http.MethodPost, schedulePath(id)+"/resume", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScheduleHistory returns the most recent firings of a definition.
func (c *Client) ScheduleHistory(ctx context.Context, id string) (*scheduledjob.History, error) {
	var out scheduledjob.History
	if err := c.call(ctx, "schedule_history", http.MethodGet, schedulePath(id)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScheduleNextRun returns the authority's next-run diagnostic.
func (c *Client) ScheduleNextRun(ctx context.Context, id string) (*NextRunInfo, error) {
	var out NextRunInfo
	if err := c.call(ctx, "schedule_next_run", http.MethodGet, schedulePath(id)+"/next-run", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the authority.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, "health", http.MethodGet, c.healthPath, nil, nil)
}

func jobPath(id string) string {
	return "/api/jobs/" + url.PathEscape(id)
}

func schedulePath(id string) string {
	return "/api/scheduler/jobs/" + url.PathEscape(id)
}

func (c *Client) command(ctx context.Context, op, method, path string, body any) (*CommandResult, error) {
	var raw json.RawMessage
	if err := c.call(ctx, op, method, path, body, &raw); err != nil {
		return nil, err
	}
	out := &CommandResult{}
	if len(raw) > 0 {
		// Non-object acknowledgements are relayed as-is.
		_ = json.Unmarshal(raw, out)
		out.Raw = raw
	}
	return out, nil
}

// call performs one request. Non-2xx responses become *UpstreamError;
// anything that prevents reading a verdict becomes *UnavailableError.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.AuthorityRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.AuthorityRequestsTotal.WithLabelValues(op, outcome(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, mErr)
		}
		reader = bytes.NewReader(payload)
	}

	resp, err := c.doRequest(ctx, method, path, reader)
	if err != nil {
		c.logger.Warn("authority request failed", "operation", op, "error", err)
		return &UnavailableError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &UnavailableError{Operation: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upErr := parseUpstreamError(op, resp.StatusCode, data)
		c.logger.Debug("authority rejected request",
			"operation", op,
			"status", resp.StatusCode,
			"detail", upErr.Message,
		)
		return upErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &UnavailableError{Operation: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id, ok := ctx.Value(logger.ContextKeyRequestID).(string); ok && id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	return c.httpClient.Do(req)
}

func outcome(err error) string {
	var up *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &up):
		return "rejected"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
