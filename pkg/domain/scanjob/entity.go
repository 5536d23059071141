package scanjob

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/shared"
)

// Transition errors.
var (
	ErrAlreadyFinished  = errors.New("job already finished")
	ErrAlreadyPaused    = errors.New("job already paused")
	ErrInvalidStatus    = errors.New("invalid state transition")
	ErrNotPaused        = errors.New("job is not paused")
	ErrNonCancellable   = errors.New("job in non-cancellable phase")
	ErrNonPausablePhase = errors.New("job in non-pausable phase")
)

// ScanJob is a snapshot of one collection run as owned by the authority.
type ScanJob struct {
	ID              string
	JobType         JobType
	Name            string
	Query           string
	TimeFilter      string
	Status          Status
	RawStatus       string // as reported, before normalization
	CancelRequested bool
	PauseRequested  bool

	TotalRaw        int
	TotalParsed     int
	TotalNew        int
	TotalDuplicates int

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Reported by the authority; Duration prefers the timestamps when both are set.
	ReportedDuration *float64
	ErrorMessage     *string
}

// New creates a queued run.
func New(id string, jobType JobType, name, query string, now time.Time) (*ScanJob, error) {
	if id == "" {
		return nil, shared.NewDomainError("VALIDATION", "id is required", shared.ErrValidation)
	}
	if !jobType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", fmt.Sprintf("invalid job_type %q", jobType), shared.ErrValidation)
	}
	if query == "" {
		return nil, shared.NewDomainError("VALIDATION", "query is required", shared.ErrValidation)
	}
	return &ScanJob{
		ID:        id,
		JobType:   jobType,
		Name:      name,
		Query:     query,
		Status:    StatusQueued,
		RawStatus: string(StatusQueued),
		CreatedAt: now.UTC(),
	}, nil
}

// DisplayParsed is TotalParsed clamped to TotalRaw.
func (j *ScanJob) DisplayParsed() int {
	if j.TotalParsed > j.TotalRaw {
		return j.TotalRaw
	}
	return j.TotalParsed
}

// ParseRate returns the parsed/raw percentage in [0, 100].
func (j *ScanJob) ParseRate() float64 {
	if j.TotalRaw <= 0 {
		return 0
	}
	rate := float64(j.TotalParsed) / float64(j.TotalRaw) * 100
	if rate > 100 {
		return 100
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// Duration returns the run time in seconds, or nil while the run is open.
func (j *ScanJob) Duration() *float64 {
	if j.StartedAt != nil && j.CompletedAt != nil {
		d := j.CompletedAt.Sub(*j.StartedAt).Seconds()
		return &d
	}
	return j.ReportedDuration
}

// setStatus updates both the normalized and raw status.
func (j *ScanJob) setStatus(s Status) {
	j.Status = s
	j.RawStatus = string(s)
}

// Start moves a queued run into collection.
func (j *ScanJob) Start(now time.Time) error {
	if !CanTransition(j.Status, StatusCollecting) || j.Status == StatusPaused {
		return fmt.Errorf("%w: cannot start job in status: %s", ErrInvalidStatus, j.Status)
	}
	t := now.UTC()
	j.StartedAt = &t
	j.setStatus(StatusCollecting)
	return nil
}

// Advance moves the run to the next status, enforcing the state machine.
func (j *ScanJob) Advance(to Status, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, j.Status, to)
	}
	j.setStatus(to)
	if to.IsTerminal() {
		t := now.UTC()
		j.CompletedAt = &t
	}
	return nil
}

// Fail terminates the run with an error message.
func (j *ScanJob) Fail(msg string, now time.Time) error {
	if err := j.Advance(StatusFailed, now); err != nil {
		return err
	}
	j.ErrorMessage = &msg
	return nil
}

// Pause requests a pause. Only a collecting run can be paused; the status is
// left untouched when the command is rejected.
func (j *ScanJob) Pause() error {
	switch {
	case j.Status == StatusPaused:
		return ErrAlreadyPaused
	case j.Status.IsTerminal():
		return ErrAlreadyFinished
	case !j.Status.CanPause():
		return fmt.Errorf("%w: %s", ErrNonPausablePhase, j.Status)
	}
	j.PauseRequested = true
	j.setStatus(StatusPaused)
	return nil
}

// Resume returns a paused run to collection.
func (j *ScanJob) Resume() error {
	if !j.Status.CanResume() {
		return fmt.Errorf("%w (current status: %s)", ErrNotPaused, j.Status)
	}
	j.PauseRequested = false
	j.setStatus(StatusCollecting)
	return nil
}

// Cancel requests cancellation. A queued run is cancelled immediately; a
// collecting run moves to cancelling and is finished by the worker.
func (j *ScanJob) Cancel(now time.Time) error {
	switch {
	case j.Status.IsTerminal():
		return ErrAlreadyFinished
	case !j.Status.CanCancel():
		return fmt.Errorf("%w: %s", ErrNonCancellable, j.Status)
	}
	j.CancelRequested = true
	if j.Status == StatusQueued {
		return j.Advance(StatusCancelled, now)
	}
	return j.Advance(StatusCancelling, now)
}

// wireJob is the JSON shape exchanged with the authority.
type wireJob struct {
	ID              string   `json:"id"`
	JobType         JobType  `json:"job_type"`
	Name            *string  `json:"name"`
	Query           string   `json:"query"`
	TimeFilter      *string  `json:"time_filter"`
	Status          string   `json:"status"`
	CancelRequested bool     `json:"cancel_requested"`
	PauseRequested  bool     `json:"pause_requested"`
	TotalRaw        int      `json:"total_raw"`
	TotalParsed     int      `json:"total_parsed"`
	TotalNew        int      `json:"total_new"`
	TotalDuplicates int      `json:"total_duplicates"`
	CreatedAt       *string  `json:"created_at"`
	StartedAt       *string  `json:"started_at"`
	CompletedAt     *string  `json:"completed_at"`
	DurationSeconds *float64 `json:"duration_seconds"`
	ErrorMessage    *string  `json:"error_message"`
}

// UnmarshalJSON decodes an authority job resource, normalizing status and
// parsing timestamps defensively.
func (j *ScanJob) UnmarshalJSON(data []byte) error {
	var w wireJob
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*j = ScanJob{
		ID:               w.ID,
		JobType:          w.JobType,
		Name:             deref(w.Name),
		Query:            w.Query,
		TimeFilter:       deref(w.TimeFilter),
		Status:           ParseStatus(w.Status),
		RawStatus:        w.Status,
		CancelRequested:  w.CancelRequested,
		PauseRequested:   w.PauseRequested,
		TotalRaw:         nonNegative(w.TotalRaw),
		TotalParsed:      nonNegative(w.TotalParsed),
		TotalNew:         nonNegative(w.TotalNew),
		TotalDuplicates:  nonNegative(w.TotalDuplicates),
		StartedAt:        parseOptional(w.StartedAt),
		CompletedAt:      parseOptional(w.CompletedAt),
		ReportedDuration: w.DurationSeconds,
		ErrorMessage:     w.ErrorMessage,
	}
	if created := parseOptional(w.CreatedAt); created != nil {
		j.CreatedAt = *created
	}
	return nil
}

// jobView is the gateway representation: the authority fields plus derived values.
type jobView struct {
	ID              string   `json:"id"`
	JobType         JobType  `json:"job_type"`
	Name            string   `json:"name"`
	Query           string   `json:"query"`
	TimeFilter      string   `json:"time_filter,omitempty"`
	Status          Status   `json:"status"`
	RawStatus       string   `json:"raw_status,omitempty"`
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

// MarshalJSON encodes the job with derived fields. The raw status is only
// included when it differs from the normalized value.
func (j ScanJob) MarshalJSON() ([]byte, error) {
	v := jobView{
		ID:              j.ID,
		JobType:         j.JobType,
		Name:            j.Name,
		Query:           j.Query,
		TimeFilter:      j.TimeFilter,
		Status:          j.Status,
		IsTerminal:      j.Status.IsTerminal(),
		CancelRequested: j.CancelRequested,
		PauseRequested:  j.PauseRequested,
		TotalRaw:        j.TotalRaw,
		TotalParsed:     j.DisplayParsed(),
		TotalNew:        j.TotalNew,
		TotalDuplicates: j.TotalDuplicates,
		ParseRate:       j.ParseRate(),
		StartedAt:       formatOptional(j.StartedAt),
		CompletedAt:     formatOptional(j.CompletedAt),
		DurationSeconds: j.Duration(),
		ErrorMessage:    j.ErrorMessage,
	}
	if !j.CreatedAt.IsZero() {
		v.CreatedAt = formatOptional(&j.CreatedAt)
	}
	if j.RawStatus != "" && j.RawStatus != string(j.Status) {
		v.RawStatus = j.RawStatus
	}
	return json.Marshal(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func parseOptional(s *string) *time.Time {
	if s == nil {
		return nil
	}
	return clock.ParseTimestampPtr(*s)
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := clock.FormatTimestamp(*t)
	return &s
}
