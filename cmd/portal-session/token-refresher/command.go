package tokenrefresh

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/portal-session/internal/business"
	"github.com/openkcm/portal-session/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"token-refresher",
		"Portal Session Token Refresh service",
		"Portal Session Token Refresh service renews the stored access token before it expires",
		buildInfo,
		cmdutils.RunAsService,
		business.TokenRefresherMain,
	)
}
