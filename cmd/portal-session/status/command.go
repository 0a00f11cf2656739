package status

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
		"status",
		"Show the portal session",
		"Prints the stored session as YAML without contacting the portal",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			return business.StatusMain(ctx, cfg, os.Stdout)
		},
	)
}
