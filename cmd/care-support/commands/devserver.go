package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquarius1905/care-support/internal/config"
	"github.com/aquarius1905/care-support/internal/devserver"
	"github.com/aquarius1905/care-support/internal/logging"
)

// NewDevServerCommand creates the devserver command
func NewDevServerCommand(v *viper.Viper) *cobra.Command {
	var (
		addr     string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local in-memory backend with demo data",
		Long: `Run a local backend that implements the token and transport schedule
endpoints, seeded with a demo account and a few pickups for today.
Point the client at it with --api-url http://localhost:8000/api.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(os.Stderr, v.GetString(config.KeyLogLevel))
			if err != nil {
				return err
			}

			srv := devserver.New(devserver.WithLogger(logger))
			if err := srv.Seed(time.Now(), username, password); err != nil {
				return fmt.Errorf("failed to seed dev server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (user %q)\n", addr, username)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8000", "Listen address")
	cmd.Flags().StringVar(&username, "user", "staff", "Demo account username")
	cmd.Flags().StringVar(&password, "password", "password", "Demo account password")
	return cmd
}
