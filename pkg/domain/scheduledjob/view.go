package scheduledjob

import (
	"time"

	"github.com/leakwatch/gateway/pkg/domain/scanjob"
)

// View is a definition decorated for display.
type View struct {
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
	PredictedNext   *string  `json:"predicted_next_run"`
	NextRunSource   Source   `json:"next_run_source,omitempty"`
	Predictable     bool     `json:"predictable"`
	TotalRuns       int      `json:"total_runs"`
	SuccessfulRuns  int      `json:"successful_runs"`
	LastCredentials int      `json:"last_credentials"`
	SuccessRate     *float64 `json:"success_rate"`
	CurrentPhase    string   `json:"current_phase,omitempty"`
	CreatedAt       *string  `json:"created_at"`
	UpdatedAt       *string  `json:"updated_at"`
}

// NewView decorates j with its predicted next run and success rate. NextRun
// keeps the authority's value for active definitions.
func NewView(j *ScheduledJob, now time.Time) View {
	next, src := PredictNextRun(j, now)
	v := View{
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
		PredictedNext:   formatOptional(next),
		NextRunSource:   src,
		Predictable:     IsPredictable(j.Schedule),
		TotalRuns:       j.Stats.TotalRuns,
		SuccessfulRuns:  j.Stats.SuccessfulRuns,
		LastCredentials: j.Stats.LastCredentials,
		SuccessRate:     j.Stats.SuccessRate(),
		CreatedAt:       formatOptional(&j.CreatedAt),
		UpdatedAt:       formatOptional(&j.UpdatedAt),
	}
	if j.IsActive {
		v.NextRun = formatOptional(j.NextRun)
	}
	if v.Keywords == nil {
		v.Keywords = []string{}
	}
	return v
}

// WithPhase sets the live phase indicator.
func (v View) WithPhase(s scanjob.Status) View {
	v.CurrentPhase = string(s)
	return v
}

// HistoryView is a history document decorated with a rollup of the returned window.
type HistoryView struct {
	ScheduledJobID   string            `json:"scheduled_job_id"`
	ScheduledJobName string            `json:"scheduled_job_name"`
	History          []RunHistoryEntry `json:"history"`
	Window           Stats             `json:"window"`
	WindowRate       *float64          `json:"window_success_rate"`
	LatestPhase      string            `json:"latest_phase,omitempty"`
}

// NewHistoryView builds the display form of h.
func NewHistoryView(h History) HistoryView {
	entries := h.Entries()
	stats := Rollup(entries)
	v := HistoryView{
		ScheduledJobID:   h.ScheduledJobID,
		ScheduledJobName: h.ScheduledJobName,
		History:          entries,
		Window:           stats,
		WindowRate:       stats.SuccessRate(),
	}
	if phase, ok := LatestPhase(entries); ok {
		v.LatestPhase = string(phase)
	}
	return v
}
