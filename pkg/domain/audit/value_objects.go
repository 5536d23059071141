package audit

// Action represents the command that was forwarded.
type Action string

const (
	// Job actions
	ActionJobCancelled Action = "job.cancelled"
	ActionJobPaused    Action = "job.paused"
	ActionJobResumed   Action = "job.resumed"
	ActionJobDeleted   Action = "job.deleted"
	ActionJobsCleared  Action = "job.cleared"

	// Schedule actions
	ActionScheduleCreated Action = "schedule.created"
	ActionScheduleUpdated Action = "schedule.updated"
	ActionScheduleDeleted Action = "schedule.deleted"
	ActionScheduleFired   Action = "schedule.run_now"
	ActionSchedulePaused  Action = "schedule.paused"
	ActionScheduleResumed Action = "schedule.resumed"
)

var actions = map[Action]Severity{
	ActionJobCancelled:    SeverityMedium,
	ActionJobPaused:       SeverityLow,
	ActionJobResumed:      SeverityLow,
	ActionJobDeleted:      SeverityHigh,
	ActionJobsCleared:     SeverityCritical,
	ActionScheduleCreated: SeverityLow,
	ActionScheduleUpdated: SeverityMedium,
	ActionScheduleDeleted: SeverityHigh,
	ActionScheduleFired:   SeverityLow,
	ActionSchedulePaused:  SeverityMedium,
	ActionScheduleResumed: SeverityLow,
}

func (a Action) String() string { return string(a) }

// IsValid checks if the action is known.
func (a Action) IsValid() bool {
	_, ok := actions[a]
	return ok
}

// ResourceType is the kind of resource a command targets.
type ResourceType string

const (
	ResourceTypeJob      ResourceType = "job"
	ResourceTypeSchedule ResourceType = "scheduled_job"
)

func (r ResourceType) String() string { return string(r) }

// IsValid checks if the resource type is known.
func (r ResourceType) IsValid() bool {
	return r == ResourceTypeJob || r == ResourceTypeSchedule
}

// Result represents the outcome of a command.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

func (r Result) String() string { return string(r) }

// IsValid checks if the result is valid.
func (r Result) IsValid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultDenied:
		return true
	}
	return false
}

// Severity represents the importance of an audit event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForAction returns the default severity for an action.
func SeverityForAction(a Action) Severity {
	if s, ok := actions[a]; ok {
		return s
	}
	return SeverityLow
}
