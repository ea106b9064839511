package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/aquarius1905/care-support/internal/api"
)

// NewLoginCommand creates the login command
func NewLoginCommand(v *viper.Viper) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Long: `Sign in with staff credentials. The password is read from --password or,
when omitted, prompted for on the terminal (or read as one line from stdin).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			if password == "" {
				password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			username = strings.TrimSpace(username)
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}

			a.session.Initialize(ctx)
			token, err := a.client.Login(ctx, username, password)
			if err != nil {
				return loginError(err)
			}
			if err := a.session.Login(ctx, token); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Staff username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func loginError(err error) error {
	var failed *api.RequestFailedError
	switch {
	case errors.As(err, &failed) && failed.Detail != "":
		return fmt.Errorf("login failed: %s", failed.Detail)
	case errors.Is(err, api.ErrNetwork):
		return fmt.Errorf("connection error: %w", err)
	default:
		return fmt.Errorf("login failed: %w", err)
	}
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
