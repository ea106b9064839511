package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquarius1905/care-support/internal/config"
	"github.com/aquarius1905/care-support/internal/tui"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:   "care-support",
		Short: "Review and adjust today's transport pickups",
		Long: `care-support is a terminal client for a care facility's transport schedule.
It signs staff in, lists today's pickups and lets them change pickup times.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/care-support/config.yaml)")
	flags.String("api-url", "", "Backend API base URL")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	for key, name := range map[string]string{
		config.KeyConfigFile: "config",
		config.KeyBaseURL:    "api-url",
		config.KeyLogLevel:   "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind --%s: %v", name, err))
		}
	}

	rootCmd.AddCommand(NewLoginCommand(v))
	rootCmd.AddCommand(NewLogoutCommand(v))
	rootCmd.AddCommand(NewStatusCommand(v))
	rootCmd.AddCommand(NewTodayCommand(v))
	rootCmd.AddCommand(NewSetTimeCommand(v))
	rootCmd.AddCommand(NewDevServerCommand(v))

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runTUI(ctx context.Context, v *viper.Viper) error {
	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	notices := tui.NewNotices()
	return tui.Run(ctx, tui.Deps{
		Session:    a.session,
		Auth:       a.client,
		Schedule:   a.newSchedule(notices),
		Notices:    notices,
		MinuteStep: a.cfg.UI.MinuteStep,
		Logger:     a.log,
	})
}
