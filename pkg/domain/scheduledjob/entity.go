// Package scheduledjob defines recurring collection definitions, their
// next-run prediction and the rollup of their run history.
package scheduledjob

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/leakwatch/gateway/pkg/clock"
	"github.com/leakwatch/gateway/pkg/domain/shared"
	"github.com/leakwatch/gateway/pkg/domain/timefilter"
)

// DefaultTimezone applies when a definition carries no timezone.
const DefaultTimezone = "Asia/Jakarta"

// ScheduledJob is a recurring collection definition as owned by the authority.
type ScheduledJob struct {
	ID         string
	Name       string
	Keywords   []string
	Schedule   string
	TimeFilter timefilter.Code
	Timezone   string

	NotifyTelegram bool
	NotifySlack    bool
	NotifyTeams    bool

	IsActive bool
	LastRun  *time.Time
	NextRun  *time.Time
	Stats    Stats

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an active definition from a normalized request.
func New(id string, req Request, now time.Time) (*ScheduledJob, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &ScheduledJob{
		ID:             id,
		Name:           req.Name,
		Keywords:       req.Keywords,
		Schedule:       req.Schedule,
		TimeFilter:     timefilter.Code(req.TimeFilter),
		Timezone:       req.Timezone,
		NotifyTelegram: req.NotifyTelegram,
		NotifySlack:    req.NotifySlack,
		NotifyTeams:    req.NotifyTeams,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Apply overwrites the editable fields from a normalized request.
func (j *ScheduledJob) Apply(req Request, now time.Time) error {
	if err := req.Normalize(); err != nil {
		return err
	}
	j.Name = req.Name
	j.Keywords = req.Keywords
	j.Schedule = req.Schedule
	j.TimeFilter = timefilter.Code(req.TimeFilter)
	j.Timezone = req.Timezone
	j.NotifyTelegram = req.NotifyTelegram
	j.NotifySlack = req.NotifySlack
	j.NotifyTeams = req.NotifyTeams
	j.UpdatedAt = now.UTC()
	return nil
}

// Pause deactivates the definition and clears its next run.
func (j *ScheduledJob) Pause(now time.Time) {
	j.IsActive = false
	j.NextRun = nil
	j.UpdatedAt = now.UTC()
}

// Resume reactivates the definition.
func (j *ScheduledJob) Resume(now time.Time) {
	j.IsActive = true
	j.UpdatedAt = now.UTC()
}

// RecordRun folds one firing into the stats and stamps LastRun.
func (j *ScheduledJob) RecordRun(e RunHistoryEntry) {
	j.Stats.Record(e)
	t := e.CreatedAt
	j.LastRun = &t
}

var locations sync.Map

// Location resolves the definition's timezone, falling back to UTC.
func (j *ScheduledJob) Location() *time.Location {
	name := j.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	locations.Store(name, loc)
	return loc
}

// Request is the create/update payload for a definition.
type Request struct {
	Name           string   `json:"name" validate:"required,max=255"`
	Keywords       []string `json:"keywords" validate:"required,keywords"`
	TimeFilter     string   `json:"time_filter,omitempty" validate:"omitempty,time_filter"`
	Schedule       string   `json:"schedule" validate:"required,max=50,cron"`
	Timezone       string   `json:"timezone,omitempty" validate:"omitempty,timezone"`
	NotifyTelegram bool     `json:"notify_telegram"`
	NotifySlack    bool     `json:"notify_slack"`
	NotifyTeams    bool     `json:"notify_teams"`
	RunImmediately *bool    `json:"run_immediately,omitempty"`
}

// Normalize applies defaults, canonicalizes keywords and resolves time filter aliases.
func (r *Request) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	r.Keywords = NormalizeKeywords(r.Keywords)
	if len(r.Keywords) == 0 {
		return shared.NewDomainError("VALIDATION", "At least one keyword is required", shared.ErrValidation)
	}
	r.Schedule = strings.Join(strings.Fields(r.Schedule), " ")
	if r.Schedule == "" {
		return shared.NewDomainError("VALIDATION", "Cron schedule string is required", shared.ErrValidation)
	}
	tf, err := timefilter.Normalize(r.TimeFilter)
	if err != nil {
		return err
	}
	r.TimeFilter = tf.String()
	r.Timezone = strings.TrimSpace(r.Timezone)
	if r.Timezone == "" {
		r.Timezone = DefaultTimezone
	}
	if r.RunImmediately == nil {
		yes := true
		r.RunImmediately = &yes
	}
	return nil
}

// ShouldRunImmediately reports the effective run_immediately flag.
func (r Request) ShouldRunImmediately() bool {
	return r.RunImmediately == nil || *r.RunImmediately
}

// NormalizeKeywords trims, NFC-normalizes and de-duplicates keywords while
// preserving order. Empty entries are dropped.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, k := range in {
		k = strings.TrimSpace(norm.NFC.String(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// wireScheduledJob is the JSON shape used by the authority.
type wireScheduledJob struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Keywords        []string `json:"keywords"`
	TimeFilter      string   `json:"time_filter"`
	Schedule        string   `json:"schedule"`
	Timezone        string   `json:"timezone"`
	NotifyTelegram  bool     `json:"notify_telegram"`
	NotifySlack     bool     `json:"notify_slack"`
	NotifyTeams     bool     `json:"notify_teams"`
	IsActive        bool     `json:"is_active"`
	LastRun         *string  `json:"last_run"`
	NextRun         *string  `json:"next_run"`
	CreatedAt       *string  `json:"created_at"`
	UpdatedAt       *string  `json:"updated_at"`
	TotalRuns       int      `json:"total_runs"`
	SuccessfulRuns  int      `json:"successful_runs"`
	LastCredentials int      `json:"last_credentials"`
}

// UnmarshalJSON decodes an authority definition.
func (j *ScheduledJob) UnmarshalJSON(data []byte) error {
	var w wireScheduledJob
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*j = ScheduledJob{
		ID:             w.ID,
		Name:           w.Name,
		Keywords:       NormalizeKeywords(w.Keywords),
		Schedule:       w.Schedule,
		TimeFilter:     timefilter.OrDefault(w.TimeFilter),
		Timezone:       w.Timezone,
		NotifyTelegram: w.NotifyTelegram,
		NotifySlack:    w.NotifySlack,
		NotifyTeams:    w.NotifyTeams,
		IsActive:       w.IsActive,
		LastRun:        parseOptional(w.LastRun),
		NextRun:        parseOptional(w.NextRun),
		Stats: Stats{
			TotalRuns:       max(w.TotalRuns, 0),
			SuccessfulRuns:  max(w.SuccessfulRuns, 0),
			LastCredentials: max(w.LastCredentials, 0),
		},
	}
	if t := parseOptional(w.CreatedAt); t != nil {
		j.CreatedAt = *t
	}
	if t := parseOptional(w.UpdatedAt); t != nil {
		j.UpdatedAt = *t
	}
	return nil
}

// MarshalJSON encodes the definition in the authority's shape. A paused
// definition never carries a next_run.
func (j ScheduledJob) MarshalJSON() ([]byte, error) {
	w := wireScheduledJob{
		ID:              j.ID,
		Name:            j.Name,
		Keywords:        j.Keywords,
		TimeFilter:      string(j.TimeFilter),
		Schedule:        j.Schedule,
		Timezone:        j.Timezone,
		NotifyTelegram:  j.NotifyTelegram,
		NotifySlack:     j.NotifySlack,
		NotifyTeams:     j.NotifyTeams,
		IsActive:        j.IsActive,
		LastRun:         formatOptional(j.LastRun),
		CreatedAt:       formatOptional(&j.CreatedAt),
		UpdatedAt:       formatOptional(&j.UpdatedAt),
		TotalRuns:       j.Stats.TotalRuns,
		SuccessfulRuns:  j.Stats.SuccessfulRuns,
		LastCredentials: j.Stats.LastCredentials,
	}
	if w.Keywords == nil {
		w.Keywords = []string{}
	}
	if j.IsActive {
		w.NextRun = formatOptional(j.NextRun)
	}
	return json.Marshal(w)
}

func parseOptional(s *string) *time.Time {
	if s == nil {
		return nil
	}
	return clock.ParseTimestampPtr(*s)
}

func formatOptional(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := clock.FormatTimestamp(*t)
	return &s
}
