package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// Mutations are sent once; the gateway relays the authority's verdict.

func newCancelCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a running collection job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, g, "POST", "/jobs/"+url.PathEscape(args[0])+"/cancel", "Job %s cancellation requested.\n", args[0])
		},
	}
}

func newPauseCmd(g *globals) *cobra.Command {
	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause a job or a scheduled job",
	}
	pauseCmd.AddCommand(
		&cobra.Command{
			Use:   "job ID",
			Short: "Pause a collection job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd, g, "POST", "/jobs/"+url.PathEscape(args[0])+"/pause", "Job %s pause requested.\n", args[0])
			},
		},
		&cobra.Command{
			Use:     "schedule ID",
			Aliases: []string{"sj"},
			Short:   "Pause a scheduled job",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd, g, "POST", "/scheduler/jobs/"+url.PathEscape(args[0])+"/pause", "Scheduled job %s paused.\n", args[0])
			},
		},
	)
	return pauseCmd
}

func newResumeCmd(g *globals) *cobra.Command {
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a job or a scheduled job",
	}
	resumeCmd.AddCommand(
		&cobra.Command{
			Use:   "job ID",
			Short: "Resume a paused collection job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd, g, "POST", "/jobs/"+url.PathEscape(args[0])+"/resume", "Job %s resumed.\n", args[0])
			},
		},
		&cobra.Command{
			Use:     "schedule ID",
			Aliases: []string{"sj"},
			Short:   "Resume a scheduled job",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd, g, "POST", "/scheduler/jobs/"+url.PathEscape(args[0])+"/resume", "Scheduled job %s resumed.\n", args[0])
			},
		},
	)
	return resumeCmd
}

func newDeleteCmd(g *globals) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a resource",
	}

	jobCmd := &cobra.Command{
		Use:   "job ID",
		Short: "Delete a collection job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, g, "DELETE", "/jobs/"+url.PathEscape(args[0]), "Job %s deleted.\n", args[0])
		},
	}

	jobsCmd := &cobra.Command{
		Use:   "jobs --all",
		Short: "Delete every collection job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all, _ := cmd.Flags().GetBool("all"); !all {
				return fmt.Errorf("refusing to delete every job without --all")
			}
			return runCommand(cmd, g, "DELETE", "/jobs", "All jobs deleted.\n")
		},
	}
	jobsCmd.Flags().Bool("all", false, "Confirm deletion of every job")

	scheduleCmd := &cobra.Command{
		Use:     "schedule ID",
		Aliases: []string{"sj"},
		Short:   "Delete a scheduled job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, g, "DELETE", "/scheduler/jobs/"+url.PathEscape(args[0]), "Scheduled job %s deleted.\n", args[0])
		},
	}

	deleteCmd.AddCommand(jobCmd, jobsCmd, scheduleCmd)
	return deleteCmd
}

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run SCHEDULE_ID",
		Short: "Trigger a scheduled job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, g, "POST", "/scheduler/jobs/"+url.PathEscape(args[0])+"/run-now", "Scheduled job %s triggered.\n", args[0])
		},
	}
}

func runCommand(cmd *cobra.Command, g *globals, method, path, format string, a ...any) error {
	client, err := g.client()
	if err != nil {
		return err
	}
	data, _, err := client.Do(cmd.Context(), method, apiPrefix+path, nil)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if g.output == outputJSON || g.output == outputYAML {
		var v any
		if err := unmarshal(data, &v); err != nil {
			return err
		}
		printStructured(w, g.output, v)
		return nil
	}
	fmt.Fprintf(w, format, a...)
	return nil
}
