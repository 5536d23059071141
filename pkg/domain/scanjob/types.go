// Package scanjob defines the ScanJob domain entity: one execution of a
// credential-leak collection run and the states it moves through.
package scanjob

import "strings"

// Status is the lifecycle state of a collection run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusCollecting Status = "collecting"
	StatusPaused     Status = "paused"
	StatusParsing    Status = "parsing"
	StatusUpserting  Status = "upserting"
	StatusCancelling Status = "cancelling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"

	// StatusUnknown is any value the authority reports that is not recognized.
	StatusUnknown Status = "unknown"
)

// Legacy names still emitted by older workers.
const (
	legacyPending = "pending"
	legacyRunning = "running"
)

var knownStatuses = map[Status]struct{}{
	StatusQueued:     {},
	StatusCollecting: {},
	StatusPaused:     {},
	StatusParsing:    {},
	StatusUpserting:  {},
	StatusCancelling: {},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// ParseStatus maps a raw status string onto the closed Status set.
// Legacy aliases are normalized; anything else becomes StatusUnknown.
func ParseStatus(raw string) Status {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case legacyPending:
		return StatusQueued
	case legacyRunning:
		return StatusCollecting
	}
	s := Status(v)
	if _, ok := knownStatuses[s]; ok {
		return s
	}
	return StatusUnknown
}

// AllStatuses returns every recognized status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusQueued, StatusCollecting, StatusPaused, StatusParsing, StatusUpserting,
		StatusCancelling, StatusCompleted, StatusFailed, StatusCancelled,
	}
}

// String returns the status text.
func (s Status) String() string { return string(s) }

// IsKnown reports whether s is one of the recognized statuses.
func (s Status) IsKnown() bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminal reports whether the run has finished.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the run is still in progress.
func (s Status) IsActive() bool {
	return s.IsKnown() && !s.IsTerminal()
}

// CanPause reports whether a pause command is valid. Only collection can be paused.
func (s Status) CanPause() bool { return s == StatusCollecting }

// CanResume reports whether a resume command is valid.
func (s Status) CanResume() bool { return s == StatusPaused }

// CanCancel reports whether a cancel command is valid.
func (s Status) CanCancel() bool {
	return s == StatusQueued || s == StatusCollecting
}

// transitions lists the successors of each non-terminal status.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusCollecting, StatusFailed, StatusCancelling, StatusCancelled},
	StatusCollecting: {StatusParsing, StatusPaused, StatusFailed, StatusCancelling},
	StatusPaused:     {StatusCollecting},
	StatusParsing:    {StatusUpserting, StatusFailed, StatusCancelling},
	StatusUpserting:  {StatusCompleted, StatusFailed, StatusCancelling},
	StatusCancelling: {StatusCancelled, StatusFailed},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobType is the kind of collection run.
type JobType string

const (
	JobTypeSingle    JobType = "intelx_single"
	JobTypeMulti     JobType = "intelx_multi"
	JobTypeFile      JobType = "file"
	JobTypeScheduled JobType = "scheduled"
)

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeSingle, JobTypeMulti, JobTypeFile, JobTypeScheduled:
		return true
	}
	return false
}
