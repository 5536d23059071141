package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
)

func newPredictCmd(g *globals) *cobra.Command {
	predictCmd := &cobra.Command{
		Use:   "predict CRON",
		Short: "Predict the next firings of a cron expression locally",
		Long: `Predict the next firings of a five-field cron expression.

Only the patterns the gateway itself predicts are supported:
hourly, daily at midnight or 06:00, weekly on Sunday and monthly on the 1st.`,
		Example: `  leakwatchctl predict "0 6 * * *" --timezone Asia/Jakarta --count 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := args[0]
			tz, _ := cmd.Flags().GetString("timezone")
			count, _ := cmd.Flags().GetInt("count")
			from, _ := cmd.Flags().GetString("from")

			if err := scheduledjob.ParseCron(expr); err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}
			if !scheduledjob.IsPredictable(expr) {
				return fmt.Errorf("%q is not a locally predicted pattern; ask the gateway with 'describe schedule'", expr)
			}

			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", tz, err)
			}

			now := time.Now()
			if from != "" {
				now, err = time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from must be RFC3339: %w", err)
				}
			}
			if count <= 0 {
				count = 1
			}

			runs := make([]time.Time, 0, count)
			for range count {
				next, _ := scheduledjob.NextOccurrence(expr, now, loc)
				runs = append(runs, next)
				now = next
			}

			w := cmd.OutOrStdout()
			if printStructured(w, g.output, runs) {
				return nil
			}
			for _, t := range runs {
				fmt.Fprintf(w, "%s  (%s UTC)\n", t.Format(time.RFC3339), t.UTC().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	predictCmd.Flags().String("timezone", scheduledjob.DefaultTimezone, "IANA timezone the expression is evaluated in")
	predictCmd.Flags().Int("count", 1, "Number of firings to print")
	predictCmd.Flags().String("from", "", "Start instant (RFC3339, default now)")
	return predictCmd
}
