package cmd

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

const apiPrefix = "/api/v1"

func newGetCmd(g *globals) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "List resources",
	}

	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "List collection jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetJobs(cmd, g)
		},
	}
	jobsCmd.Flags().String("status", "", "Filter by status")
	jobsCmd.Flags().Int("skip", 0, "Number of jobs to skip")
	jobsCmd.Flags().Int("limit", 50, "Maximum number of jobs")

	schedulesCmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"schedule", "sj"},
		Short:   "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetSchedules(cmd, g)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history SCHEDULE_ID",
		Short: "Show recent runs of a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetHistory(cmd, g, args[0])
		},
	}

	phasesCmd := &cobra.Command{
		Use:   "phases",
		Short: "Show the latest run phase of every active scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetPhases(cmd, g)
		},
	}

	auditCmd := &cobra.Command{
		Use:     "audit",
		Aliases: []string{"audit-logs"},
		Short:   "List audited commands (administrators only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetAudit(cmd, g)
		},
	}
	auditCmd.Flags().String("actor", "", "Filter by username")
	auditCmd.Flags().String("resource-type", "", "Filter by resource type (job, scheduled_job)")
	auditCmd.Flags().String("resource-id", "", "Filter by resource ID")
	auditCmd.Flags().String("since", "", "Lower bound (RFC3339)")
	auditCmd.Flags().Int("limit", 50, "Maximum number of records")

	getCmd.AddCommand(jobsCmd, schedulesCmd, historyCmd, phasesCmd, auditCmd)
	return getCmd
}

func runGetJobs(cmd *cobra.Command, g *globals) error {
	client, err := g.client()
	if err != nil {
		return err
	}

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	if v, _ := cmd.Flags().GetInt("skip"); v > 0 {
		params.Set("skip", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
		params.Set("limit", strconv.Itoa(v))
	}

	path := apiPrefix + "/jobs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	data, err := client.Get(cmd.Context(), path)
	if err != nil {
		return err
	}

	var resp JobListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if printStructured(w, g.output, resp) {
		return nil
	}
	if len(resp.Data) == 0 {
		fmt.Fprintln(w, "No jobs found.")
		return nil
	}

	t := newTable(w, "ID", "NAME", "TYPE", "STATUS", "RAW", "NEW", "CREATED")
	for _, j := range resp.Data {
		t.AddRow(
			j.ID,
			truncate(j.Name, 32),
			j.JobType,
			j.Status,
			strconv.Itoa(j.TotalRaw),
			strconv.Itoa(j.TotalNew),
			shortTime(ptrStr(j.CreatedAt)),
		)
	}
	t.Flush()
	if resp.HasMore {
		fmt.Fprintf(w, "\nMore jobs available: --skip %d\n", resp.Skip+resp.Count)
	}
	return nil
}

func runGetSchedules(cmd *cobra.Command, g *globals) error {
	client, err := g.client()
	if err != nil {
		return err
	}
	data, err := client.Get(cmd.Context(), apiPrefix+"/scheduler/jobs?with_phases=true")
	if err != nil {
		return err
	}

	var resp ScheduleListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if printStructured(w, g.output, resp) {
		return nil
	}
	if len(resp.Data) == 0 {
		fmt.Fprintln(w, "No scheduled jobs found.")
		return nil
	}

	t := newTable(w, "ID", "NAME", "SCHEDULE", "TIMEZONE", "ACTIVE", "NEXT-RUN", "SUCCESS", "PHASE")
	for _, s := range resp.Data {
		phase := s.CurrentPhase
		if phase == "" {
			phase = "-"
		}
		t.AddRow(
			s.ID,
			truncate(s.Name, 32),
			s.Schedule,
			s.Timezone,
			boolToStr(s.IsActive),
			shortTime(ptrStr(s.PredictedNextRun)),
			percent(s.SuccessRate),
			phase,
		)
	}
	t.Flush()
	return nil
}

func runGetHistory(cmd *cobra.Command, g *globals, id string) error {
	client, err := g.client()
	if err != nil {
		return err
	}
	data, err := client.Get(cmd.Context(), apiPrefix+"/scheduler/jobs/"+url.PathEscape(id)+"/history")
	if err != nil {
		return err
	}

	var resp HistoryResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if printStructured(w, g.output, resp) {
		return nil
	}

	fmt.Fprintf(w, "%s (%s)  success rate: %s\n\n", resp.ScheduledJobName, resp.ScheduledJobID, percent(resp.WindowSuccessRate))
	if len(resp.History) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	t := newTable(w, "RUN", "STATUS", "RAW", "NEW", "CREATED", "ERROR")
	for _, e := range resp.History {
		t.AddRow(e.ID, e.Status, strconv.Itoa(e.TotalRaw), strconv.Itoa(e.TotalNew), shortTime(e.CreatedAt), truncate(ptrStr(e.ErrorMessage), 40))
	}
	t.Flush()
	return nil
}

func runGetPhases(cmd *cobra.Command, g *globals) error {
	client, err := g.client()
	if err != nil {
		return err
	}
	data, err := client.Get(cmd.Context(), apiPrefix+"/scheduler/phases")
	if err != nil {
		return err
	}

	var phases map[string]string
	if err := unmarshal(data, &phases); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if printStructured(w, g.output, phases) {
		return nil
	}
	printPhases(w, phases)
	return nil
}

func runGetAudit(cmd *cobra.Command, g *globals) error {
	client, err := g.client()
	if err != nil {
		return err
	}

	params := url.Values{}
	for flag, key := range map[string]string{
		"actor":         "actor",
		"resource-type": "resource_type",
		"resource-id":   "resource_id",
		"since":         "since",
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			params.Set(key, v)
		}
	}
	if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
		params.Set("limit", strconv.Itoa(v))
	}

	path := apiPrefix + "/audit"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	data, err := client.Get(cmd.Context(), path)
	if err != nil {
		return err
	}

	var resp AuditListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if printStructured(w, g.output, resp) {
		return nil
	}
	if len(resp.Data) == 0 {
		fmt.Fprintln(w, "No audit records found.")
		return nil
	}

	t := newTable(w, "TIME", "ACTOR", "ACTION", "RESOURCE", "RESULT", "STATUS")
	for _, r := range resp.Data {
		t.AddRow(shortTime(r.Timestamp), r.Actor, r.Action, r.ResourceType+"/"+r.ResourceID, r.Result, strconv.Itoa(r.Status))
	}
	t.Flush()
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
