package cmd

import (
	"errors"
	"fmt"

	statusadapter "github.com/bnema/taxon-resolver-cli/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

const defaultRecentRuns = 5

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool
	var runs int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache statistics and recent resolver runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runs < 0 {
				return errors.New("--runs must not be negative")
			}

			return withSession(app, func(s *session) error {
				status, err := s.service.Status(cmd.Context(), runs)
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), status)
				}

				rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{Now: app.now()})
				if err != nil {
					return fmt.Errorf("render status: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().IntVar(&runs, "runs", defaultRecentRuns, "Number of recent runs to show")

	return cmd
}
