package fetch

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/portal-session/internal/business"
	"github.com/openkcm/portal-session/internal/cmdutils"
	"github.com/openkcm/portal-session/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var opts business.FetchOptions

	cmd := cmdutils.CobraCommand(
		"fetch",
		"Send an authenticated request",
		"Sends a request with the stored access token, renewing it when needed, and prints the response body",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			if opts.URL == "" {
				return errors.New("url is required")
			}

			return business.FetchMain(ctx, cfg, opts, os.Stdout)
		},
	)

	cmd.Flags().StringVarP(&opts.Method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&opts.URL, "url", "", "absolute URL or path relative to the portal base URL")
	cmd.Flags().StringVarP(&opts.Body, "data", "d", "", "request body")

	return cmd
}
