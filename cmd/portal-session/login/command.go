package login

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/portal-session/internal/business"
	"github.com/openkcm/portal-session/internal/cmdutils"
	"github.com/openkcm/portal-session/internal/config"
)

// passwordEnv is read when --password is not given
const passwordEnv = "PORTAL_SESSION_PASSWORD"

func Cmd(buildInfo string) *cobra.Command {
	var opts business.LoginOptions

	cmd := cmdutils.CobraCommand(
		"login",
		"Log in to the portal",
		"Logs in with email and password and stores the returned credentials",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			if opts.Password == "" {
				opts.Password = os.Getenv(passwordEnv)
			}
			if opts.Email == "" || opts.Password == "" {
				return errors.New("email and password are required")
			}

			return business.LoginMain(ctx, cfg, opts, os.Stdout)
		},
	)

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password, defaults to $"+passwordEnv)
	cmd.Flags().BoolVar(&opts.Remember, "remember", false, "keep the session after the process exits")

	return cmd
}
