package scheduledjob

import (
	"sort"
	"time"

	"github.com/leakwatch/gateway/pkg/domain/scanjob"
)

// HistoryLimit is the number of most recent firings the authority returns.
const HistoryLimit = 20

// Stats is the per-definition rollup of firing outcomes.
type Stats struct {
	TotalRuns       int `json:"total_runs"`
	SuccessfulRuns  int `json:"successful_runs"`
	LastCredentials int `json:"last_credentials"`
}

// Record folds one firing into the rollup.
func (s *Stats) Record(e RunHistoryEntry) {
	s.TotalRuns++
	if e.Succeeded() {
		s.SuccessfulRuns++
	}
	s.LastCredentials = e.TotalNew
}

// SuccessRate is SuccessfulRuns/TotalRuns*100, or nil when nothing has run.
func (s Stats) SuccessRate() *float64 {
	if s.TotalRuns <= 0 {
		return nil
	}
	r := float64(s.SuccessfulRuns) / float64(s.TotalRuns) * 100
	return &r
}

// RunHistoryEntry is the immutable outcome of one firing.
type RunHistoryEntry struct {
	ID              string         `json:"id"`
	ScheduledJobID  string         `json:"scheduled_job_id"`
	Status          scanjob.Status `json:"status"`
	Query           string         `json:"query"`
	TimeFilter      string         `json:"time_filter,omitempty"`
	TotalRaw        int            `json:"total_raw"`
	TotalParsed     int            `json:"total_parsed"`
	TotalNew        int            `json:"total_new"`
	TotalDuplicates int            `json:"total_duplicates"`
	ErrorMessage    *string        `json:"error_message"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EntryFromJob builds a history entry from the run a firing produced.
func EntryFromJob(scheduledJobID string, j scanjob.ScanJob) RunHistoryEntry {
	return RunHistoryEntry{
		ID:              j.ID,
		ScheduledJobID:  scheduledJobID,
		Status:          j.Status,
		Query:           j.Query,
		TimeFilter:      j.TimeFilter,
		TotalRaw:        j.TotalRaw,
		TotalParsed:     j.DisplayParsed(),
		TotalNew:        j.TotalNew,
		TotalDuplicates: j.TotalDuplicates,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
	}
}

// Succeeded reports a completed run without an error message.
func (e RunHistoryEntry) Succeeded() bool {
	return e.Status == scanjob.StatusCompleted && (e.ErrorMessage == nil || *e.ErrorMessage == "")
}

// History is the authority's history document for one definition.
type History struct {
	ScheduledJobID   string            `json:"scheduled_job_id"`
	ScheduledJobName string            `json:"scheduled_job_name"`
	History          []scanjob.ScanJob `json:"history"`
}

// Entries converts the history runs into entries, newest first.
func (h History) Entries() []RunHistoryEntry {
	out := make([]RunHistoryEntry, 0, len(h.History))
	for _, j := range h.History {
		out = append(out, EntryFromJob(h.ScheduledJobID, j))
	}
	sortNewestFirst(out)
	return out
}

// Rollup recomputes stats from a set of entries in firing order.
func Rollup(entries []RunHistoryEntry) Stats {
	ordered := make([]RunHistoryEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, k int) bool {
		return ordered[i].CreatedAt.Before(ordered[k].CreatedAt)
	})

	var s Stats
	for _, e := range ordered {
		s.Record(e)
	}
	return s
}

// LatestPhase returns the status of the most recent entry.
func LatestPhase(entries []RunHistoryEntry) (scanjob.Status, bool) {
	if len(entries) == 0 {
		return "", false
	}
	latest := entries[0]
	for _, e := range entries[1:] {
		if e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest.Status, true
}

func sortNewestFirst(entries []RunHistoryEntry) {
	sort.SliceStable(entries, func(i, k int) bool {
		return entries[i].CreatedAt.After(entries[k].CreatedAt)
	})
}
