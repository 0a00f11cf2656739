package logout

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/portal-session/internal/business"
	"github.com/openkcm/portal-session/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"logout",
		"End the portal session",
		"Revokes the stored access token and removes the stored credentials",
		buildInfo,
		cmdutils.RunAsJob,
		business.LogoutMain,
	)
}
