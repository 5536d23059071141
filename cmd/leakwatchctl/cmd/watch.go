package cmd

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
)

func newWatchCmd(g *globals) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live progress",
	}

	jobCmd := &cobra.Command{
		Use:   "job ID",
		Short: "Follow a collection job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			follow, _ := cmd.Flags().GetBool("follow")

			path := apiPrefix + "/jobs/" + url.PathEscape(args[0]) + "/stream"
			if !follow {
				path += "?close_on_terminal=true"
			}

			w := cmd.OutOrStdout()
			var last string
			return client.Stream(cmd.Context(), path, func(ev Event) error {
				if g.output == outputJSON {
					fmt.Fprintf(w, "%s\n", ev.Data)
					return nil
				}
				switch ev.Name {
				case "error":
					return printStreamError(w, ev.Data)
				default:
					var j JobResponse
					if err := unmarshal(ev.Data, &j); err != nil {
						return err
					}
					line := progressLine(j)
					if line != last {
						fmt.Fprintln(w, line)
						last = line
					}
				}
				return nil
			})
		},
	}
	jobCmd.Flags().Bool("follow", false, "Keep watching after the job finishes")

	phasesCmd := &cobra.Command{
		Use:   "phases",
		Short: "Follow the run phase of every active scheduled job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			return client.Stream(cmd.Context(), apiPrefix+"/scheduler/phases/stream", func(ev Event) error {
				if g.output == outputJSON {
					fmt.Fprintf(w, "%s\n", ev.Data)
					return nil
				}
				if ev.Name == "error" {
					return printStreamError(w, ev.Data)
				}
				var phases map[string]string
				if err := unmarshal(ev.Data, &phases); err != nil {
					return err
				}
				printPhases(w, phases)
				fmt.Fprintln(w)
				return nil
			})
		},
	}

	watchCmd.AddCommand(jobCmd, phasesCmd)
	return watchCmd
}

// printStreamError renders an {error, status} event. The stream stays open.
func printStreamError(w io.Writer, data []byte) error {
	var e struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	if err := unmarshal(data, &e); err != nil {
		return err
	}
	fmt.Fprintf(w, "! %s (%d)\n", e.Error, e.Status)
	return nil
}

func progressLine(j JobResponse) string {
	return fmt.Sprintf("%-12s raw=%d parsed=%d new=%d dup=%d", j.Status, j.TotalRaw, j.TotalParsed, j.TotalNew, j.TotalDuplicates)
}

func printPhases(w io.Writer, phases map[string]string) {
	if len(phases) == 0 {
		fmt.Fprintln(w, "No active scheduled jobs.")
		return
	}
	t := newTable(w, "SCHEDULED-JOB", "PHASE")
	for _, id := range sortedKeys(phases) {
		t.AddRow(id, phases[id])
	}
	t.Flush()
}
