package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/portal-session/cmd/portal-session/fetch"
	"github.com/openkcm/portal-session/cmd/portal-session/login"
	"github.com/openkcm/portal-session/cmd/portal-session/logout"
	"github.com/openkcm/portal-session/cmd/portal-session/refresh"
	"github.com/openkcm/portal-session/cmd/portal-session/status"
	tokenrefresh "github.com/openkcm/portal-session/cmd/portal-session/token-refresher"
	"github.com/openkcm/portal-session/internal/serviceerr"
)

// exitSessionEnded is returned when the command ended the stored session.
const exitSessionEnded = 3

var (
	// BuildInfo will be set by the build system
	BuildInfo = "{}"

	isServiceCmd     bool
	gracefulShutdown time.Duration
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Portal Session Version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := utils.ExtractFromComplexValue(BuildInfo)
		if err != nil {
			return err
		}

		slog.InfoContext(cmd.Context(), value)

		return nil
	},
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal-session",
		Short: "Portal Session",
		Long:  "Customer portal session client: logs in, keeps the access token fresh and sends authenticated requests.",
	}

	cmd.PersistentFlags().DurationVar(&gracefulShutdown, "graceful-shutdown", 1*time.Second, "graceful shutdown")

	refresher := tokenrefresh.Cmd(BuildInfo)
	refresher.PreRun = func(*cobra.Command, []string) { isServiceCmd = true }

	cmd.AddCommand(
		versionCmd,
		login.Cmd(BuildInfo),
		logout.Cmd(BuildInfo),
		refresh.Cmd(BuildInfo),
		status.Cmd(BuildInfo),
		fetch.Cmd(BuildInfo),
		refresher,
	)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancelOnSignal()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "failed to run the command", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		if serviceerr.IsSessionEnding(err) {
			_, _ = fmt.Fprintln(os.Stderr, "Session ended, run \"portal-session login\" to sign in again")
		}

		return err
	}

	if isServiceCmd {
		_, _ = fmt.Fprintf(os.Stderr, "Graceful shutdown in %s\n", gracefulShutdown)
		time.Sleep(gracefulShutdown)
	}

	return nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case serviceerr.IsSessionEnding(err):
		return exitSessionEnded
	default:
		return 1
	}
}

func main() {
	if code := exitCode(execute()); code != 0 {
		os.Exit(code)
	}
}
