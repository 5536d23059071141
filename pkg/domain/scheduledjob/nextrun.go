package scheduledjob

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TrustWindow is how far ahead an authority-reported next run must be before it
// is used verbatim instead of a local prediction.
const TrustWindow = 30 * time.Second

// Recurring patterns predicted locally. Anything else is left to the authority.
const (
	Hourly        = "0 * * * *"
	DailyMidnight = "0 0 * * *"
	DailySix      = "0 6 * * *"
	WeeklySunday  = "0 0 * * 0"
	MonthlyFirst  = "0 0 1 * *"
)

var predictable = map[string]cron.Schedule{}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func init() {
	for _, expr := range []string{Hourly, DailyMidnight, DailySix, WeeklySunday, MonthlyFirst} {
		predictable[expr] = mustParse(expr)
	}
}

func mustParse(expr string) cron.Schedule {
	s, err := cronParser.Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseCron validates a five-field cron expression.
func ParseCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

func canonicalCron(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

// IsPredictable reports whether expr is one of the locally predicted patterns.
func IsPredictable(expr string) bool {
	_, ok := predictable[canonicalCron(expr)]
	return ok
}

// NextOccurrence returns the first firing of expr strictly after now, evaluated
// in loc. The boolean is false for patterns outside the predicted set.
func NextOccurrence(expr string, now time.Time, loc *time.Location) (time.Time, bool) {
	sched, ok := predictable[canonicalCron(expr)]
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	return sched.Next(now.In(loc)), true
}

// Source says where a next-run value came from.
type Source string

const (
	SourceNone      Source = ""
	SourceAuthority Source = "authority"
	SourcePredicted Source = "predicted"
)

// PredictNextRun returns the next run to display for j.
//
// An inactive definition never has one. An authority value more than
// TrustWindow ahead of now is used as is; otherwise a predictable pattern is
// computed locally. For other patterns only a future authority value is shown.
func PredictNextRun(j *ScheduledJob, now time.Time) (*time.Time, Source) {
	if j == nil || !j.IsActive {
		return nil, SourceNone
	}
	if j.NextRun != nil && j.NextRun.Sub(now) > TrustWindow {
		t := *j.NextRun
		return &t, SourceAuthority
	}
	if next, ok := NextOccurrence(j.Schedule, now, j.Location()); ok {
		return &next, SourcePredicted
	}
	if j.NextRun != nil && j.NextRun.After(now) {
		t := *j.NextRun
		return &t, SourceAuthority
	}
	return nil, SourceNone
}
