package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bnema/taxon-resolver-cli/internal/adapters/dump"
	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/spf13/cobra"
)

func newTaxonomyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Manage the local NCBI taxonomy",
	}

	cmd.AddCommand(newTaxonomyImportCmd(app), newTaxonomyLineageCmd(app))
	return cmd
}

func newTaxonomyImportCmd(app *app) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "import <taxdump.zip|dir>",
		Short: "Replace the local taxonomy with an NCBI taxdump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				importer := application.NewTaxonomyImporter(s.taxa, app.log.WithField("component", "taxonomy"))

				var count int
				err := runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Importing taxonomy", !noProgress, app.log,
					func(ctx context.Context, _ ports.Progress) error {
						var err error
						count, err = importer.Import(ctx, dump.ReadTaxdump(args[0]))
						return err
					})
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d taxa\n", count)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw the progress display")
	return cmd
}

func newTaxonomyLineageCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <taxid>",
		Short: "Print the ancestry of a taxon, root first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid taxon id %q", args[0])
			}

			return withSession(app, func(s *session) error {
				nodes, err := s.service.Lineage(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, node := range nodes {
					rank := node.Rank
					if rank == "" {
						rank = "-"
					}
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", node.ID, rank, node.ScientificName()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
