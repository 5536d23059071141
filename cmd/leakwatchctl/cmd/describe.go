package cmd

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDescribeCmd(g *globals) *cobra.Command {
	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Show details of a resource",
	}

	jobCmd := &cobra.Command{
		Use:   "job ID",
		Short: "Show a collection job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			data, err := client.Get(cmd.Context(), apiPrefix+"/jobs/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var job JobResponse
			if err := unmarshal(data, &job); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if printStructured(w, g.output, job) {
				return nil
			}
			describeJob(w, job)
			return nil
		},
	}

	scheduleCmd := &cobra.Command{
		Use:     "schedule ID",
		Aliases: []string{"sj"},
		Short:   "Show a scheduled job with its next-run diagnostic",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			base := apiPrefix + "/scheduler/jobs/" + url.PathEscape(args[0])
			data, err := client.Get(cmd.Context(), base)
			if err != nil {
				return err
			}
			var s ScheduleResponse
			if err := unmarshal(data, &s); err != nil {
				return err
			}

			var diag map[string]any
			if raw, err := client.Get(cmd.Context(), base+"/next-run"); err == nil {
				_ = unmarshal(raw, &diag)
			}

			w := cmd.OutOrStdout()
			if printStructured(w, g.output, map[string]any{"scheduled_job": s, "next_run": diag}) {
				return nil
			}
			describeSchedule(w, s, diag)
			return nil
		},
	}

	describeCmd.AddCommand(jobCmd, scheduleCmd)
	return describeCmd
}

func describeJob(w io.Writer, j JobResponse) {
	fmt.Fprintf(w, "ID:            %s\n", j.ID)
	fmt.Fprintf(w, "Name:          %s\n", j.Name)
	fmt.Fprintf(w, "Type:          %s\n", j.JobType)
	fmt.Fprintf(w, "Query:         %s\n", j.Query)
	if j.TimeFilter != "" {
		fmt.Fprintf(w, "Time filter:   %s\n", j.TimeFilter)
	}
	fmt.Fprintf(w, "Status:        %s\n", j.Status)
	if j.CancelRequested {
		fmt.Fprintln(w, "               cancel requested")
	}
	if j.PauseRequested {
		fmt.Fprintln(w, "               pause requested")
	}
	fmt.Fprintf(w, "\nCounters:\n")
	fmt.Fprintf(w, "  Raw:         %d\n", j.TotalRaw)
	fmt.Fprintf(w, "  Parsed:      %d (%.1f%%)\n", j.TotalParsed, j.ParseRate)
	fmt.Fprintf(w, "  New:         %d\n", j.TotalNew)
	fmt.Fprintf(w, "  Duplicates:  %d\n", j.TotalDuplicates)
	fmt.Fprintf(w, "\nTimes:\n")
	fmt.Fprintf(w, "  Created:     %s\n", ptrStr(j.CreatedAt))
	fmt.Fprintf(w, "  Started:     %s\n", ptrStr(j.StartedAt))
	fmt.Fprintf(w, "  Completed:   %s\n", ptrStr(j.CompletedAt))
	if j.DurationSeconds != nil {
		fmt.Fprintf(w, "  Duration:    %ss\n", strconv.FormatFloat(*j.DurationSeconds, 'f', 1, 64))
	}
	if j.ErrorMessage != nil && *j.ErrorMessage != "" {
		fmt.Fprintf(w, "\nError:         %s\n", *j.ErrorMessage)
	}
}

func describeSchedule(w io.Writer, s ScheduleResponse, diag map[string]any) {
	fmt.Fprintf(w, "ID:            %s\n", s.ID)
	fmt.Fprintf(w, "Name:          %s\n", s.Name)
	fmt.Fprintf(w, "Keywords:      %s\n", strings.Join(s.Keywords, ", "))
	fmt.Fprintf(w, "Time filter:   %s\n", s.TimeFilter)
	fmt.Fprintf(w, "Schedule:      %s (%s)\n", s.Schedule, s.Timezone)
	fmt.Fprintf(w, "Active:        %s\n", boolToStr(s.IsActive))
	fmt.Fprintf(w, "Last run:      %s\n", ptrStr(s.LastRun))
	fmt.Fprintf(w, "Next run:      %s\n", ptrStr(s.PredictedNextRun))
	if s.NextRunSource != "" {
		fmt.Fprintf(w, "               source: %s\n", s.NextRunSource)
	}
	fmt.Fprintf(w, "Runs:          %d total, %d successful (%s)\n", s.TotalRuns, s.SuccessfulRuns, percent(s.SuccessRate))
	fmt.Fprintf(w, "Last found:    %d\n", s.LastCredentials)
	if s.CurrentPhase != "" {
		fmt.Fprintf(w, "Phase:         %s\n", s.CurrentPhase)
	}

	if len(diag) == 0 {
		return
	}
	fmt.Fprintf(w, "\nNext-run diagnostic:\n")
	keys := make(map[string]string, len(diag))
	for k, v := range diag {
		if v == nil {
			keys[k] = "-"
			continue
		}
		keys[k] = fmt.Sprint(v)
	}
	for _, k := range sortedKeys(keys) {
		fmt.Fprintf(w, "  %-20s %s\n", k+":", keys[k])
	}
}
