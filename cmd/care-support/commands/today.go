package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewTodayCommand creates the today command
func NewTodayCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List today's pickups without the TUI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ready(ctx); err != nil {
				return err
			}
			result, err := a.newSchedule(nil).FetchToday(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch today's schedule: %w", err)
			}

			out := cmd.OutOrStdout()
			if result.Empty {
				fmt.Fprintf(out, "No pickups scheduled for today (%s)\n", result.Date)
				return nil
			}

			fmt.Fprintf(out, "Pickups for %s:\n", result.Date)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tNAME")
			for _, e := range result.Entries {
				fmt.Fprintf(w, "%d\t%s\t%s\n", e.ID, e.ScheduledTime, e.SubjectName)
			}
			return w.Flush()
		},
	}
}
