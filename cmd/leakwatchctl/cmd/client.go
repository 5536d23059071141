package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is the gateway HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	verbose    bool
	log        io.Writer
}

// NewClient creates a new gateway client.
func NewClient(baseURL, token string, verbose bool) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No client timeout: streams stay open. Requests are bounded by ctx.
		httpClient: &http.Client{},
		verbose:    verbose,
		log:        os.Stderr,
	}
}

const requestTimeout = 30 * time.Second

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.verbose {
		fmt.Fprintf(c.log, ">>> %s %s\n", method, url)
	}
	return req, nil
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Fprintf(c.log, "<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}
	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	data, _, err := c.Do(ctx, http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	data, _, err := c.Do(ctx, http.MethodPost, path, body)
	return data, err
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	data, _, err := c.Do(ctx, http.MethodDelete, path, nil)
	return data, err
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data []byte
}

// Stream reads server-sent events from path until the server closes the
// stream, ctx ends or fn returns an error.
func (c *Client) Stream(ctx context.Context, path string, fn func(Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return parseAPIError(resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var ev Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Name != "" || len(ev.Data) > 0 {
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = Event{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if len(ev.Data) > 0 {
				ev.Data = append(ev.Data, '\n')
			}
			ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// APIError represents an error from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Detail
		}
	}

	if apiErr.Message == "" {
		switch statusCode {
		case http.StatusUnauthorized:
			apiErr.Message = "unauthorized: invalid or missing token"
		case http.StatusForbidden:
			apiErr.Message = "forbidden: insufficient role"
		case http.StatusNotFound:
			apiErr.Message = "resource not found"
		case http.StatusTooManyRequests:
			apiErr.Message = "rate limited: slow down"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode))
		}
	}
	return apiErr
}

// Response types matching the gateway's JSON.

type JobResponse struct {
	ID              string   `json:"id"`
	JobType         string   `json:"job_type"`
	Name            string   `json:"name"`
	Query           string   `json:"query"`
	TimeFilter      string   `json:"time_filter,omitempty"`
	Status          string   `json:"status"`
	IsTerminal      bool     `json:"is_terminal"`
	CancelRequested bool     `json:"cancel_requested"`
	PauseRequested  bool     `json:"pause_requested"`
	TotalRaw        int      `json:"total_raw"`
	TotalParsed     int      `json:"total_parsed"`
	TotalNew        int      `json:"total_new"`
	TotalDuplicates int      `json:"total_duplicates"`
	ParseRate       float64  `json:"parse_rate"`
	CreatedAt       *string  `json:"created_at"`
	StartedAt       *string  `json:"started_at"`
	CompletedAt     *string  `json:"completed_at"`
	DurationSeconds *float64 `json:"duration_seconds"`
	ErrorMessage    *string  `json:"error_message"`
}

type JobListResponse struct {
	Data    []JobResponse `json:"data"`
	Skip    int           `json:"skip"`
	Limit   int           `json:"limit"`
	Count   int           `json:"count"`
	HasMore bool          `json:"has_more"`
}

type ScheduleResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Keywords         []string `json:"keywords"`
	TimeFilter       string   `json:"time_filter"`
	Schedule         string   `json:"schedule"`
	Timezone         string   `json:"timezone"`
	IsActive         bool     `json:"is_active"`
	LastRun          *string  `json:"last_run"`
	NextRun          *string  `json:"next_run"`
	PredictedNextRun *string  `json:"predicted_next_run"`
	NextRunSource    string   `json:"next_run_source,omitempty"`
	TotalRuns        int      `json:"total_runs"`
	SuccessfulRuns   int      `json:"successful_runs"`
	LastCredentials  int      `json:"last_credentials"`
	SuccessRate      *float64 `json:"success_rate"`
	CurrentPhase     string   `json:"current_phase,omitempty"`
}

type ScheduleListResponse struct {
	Data  []ScheduleResponse `json:"data"`
	Count int                `json:"count"`
}

type HistoryEntryResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Query        string  `json:"query"`
	TotalRaw     int     `json:"total_raw"`
	TotalNew     int     `json:"total_new"`
	ErrorMessage *string `json:"error_message"`
	CreatedAt    string  `json:"created_at"`
}

type HistoryResponse struct {
	ScheduledJobID    string                 `json:"scheduled_job_id"`
	ScheduledJobName  string                 `json:"scheduled_job_name"`
	History           []HistoryEntryResponse `json:"history"`
	WindowSuccessRate *float64               `json:"window_success_rate"`
	LatestPhase       string                 `json:"latest_phase,omitempty"`
}

type AuditRecordResponse struct {
	ID           string `json:"id"`
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`
	Actor        string `json:"actor"`
	ActorRole    string `json:"actor_role"`
	Result       string `json:"result"`
	Status       int    `json:"status"`
	Timestamp    string `json:"timestamp"`
}

type AuditListResponse struct {
	Data    []AuditRecordResponse `json:"data"`
	Count   int                   `json:"count"`
	HasMore bool                  `json:"has_more"`
}
