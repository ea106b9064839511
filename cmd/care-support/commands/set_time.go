package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquarius1905/care-support/pkg/models"
)

// NewSetTimeCommand creates the set-time command
func NewSetTimeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set-time <entry-id> <HH:MM>",
		Short: "Change the pickup time of one of today's entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			newTime, err := models.ParseClockTime(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ready(ctx); err != nil {
				return err
			}
			list := a.newSchedule(nil)
			if _, err := list.FetchToday(ctx); err != nil {
				return fmt.Errorf("failed to fetch today's schedule: %w", err)
			}
			entry, ok := list.Entry(id)
			if !ok {
				return fmt.Errorf("entry %d is not scheduled today", id)
			}

			if _, err := list.BeginEdit(id); err != nil {
				return err
			}
			if err := list.SetProposed(newTime); err != nil {
				return err
			}
			if _, err := list.ConfirmEdit(ctx); err != nil {
				return fmt.Errorf("failed to update pickup time: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", entry.SubjectName, entry.ScheduledTime, newTime)
			return nil
		},
	}
}
