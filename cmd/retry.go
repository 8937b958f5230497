package cmd

import (
	"context"

	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/spf13/cobra"
)

func newRetryCmd(app *app) *cobra.Command {
	var limit int
	var asJSON bool
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Fetch again the accessions left pending by earlier runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(app, func(s *session) error {
				resolver, err := s.resolver(cmd.Context())
				if err != nil {
					return err
				}
				retry := application.NewRetryService(s.cache, resolver)

				var result application.ResolveResult
				runErr := runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Retrying pending accessions", !asJSON && !noProgress, app.log,
					func(ctx context.Context, progress ports.Progress) error {
						var err error
						result, err = retry.RetryPending(ctx, limit, progress)
						return err
					})

				return finishRun(cmd, s, result, nil, asJSON, runErr)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Retry at most this many accessions (0 retries all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw the progress display")

	return cmd
}
