package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquarius1905/care-support/internal/config"
)

// NewStatusCommand creates the status command
func NewStatusCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored and where",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.Initialize(ctx)
			status := a.session.Status()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session: %s\n", status.State)
			fmt.Fprintf(out, "API:     %s\n", a.client.BaseURL())
			if a.cfg.Storage.Driver == config.DriverPostgres {
				fmt.Fprintf(out, "Storage: %s\n", a.cfg.Storage.Driver)
			} else {
				fmt.Fprintf(out, "Storage: %s (%s)\n", a.cfg.Storage.Driver, a.cfg.Storage.Path)
			}
			fmt.Fprintf(out, "Log:     %s\n", a.cfg.Log.File)
			return nil
		},
	}
}
