package refresh

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/portal-session/internal/business"
	"github.com/openkcm/portal-session/internal/cmdutils"
	"github.com/openkcm/portal-session/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"refresh",
		"Renew the access token",
		"Exchanges the stored renewal token for a new access token and prints the session",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			return business.RefreshMain(ctx, cfg, os.Stdout)
		},
	)
}
