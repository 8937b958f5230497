package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/taxon-resolver-cli/internal/adapters/dump"
	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/spf13/cobra"
)

type accessionOutput struct {
	Accession     string  `json:"accession"`
	State         string  `json:"state"`
	TaxonID       *int    `json:"taxon_id"`
	HitDefinition *string `json:"hit_definition"`
}

func newCacheCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and seed the accession cache",
	}

	cmd.AddCommand(newCacheSeedCmd(app), newCacheGetCmd(app))
	return cmd
}

func newCacheSeedCmd(app *app) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "seed <taxmap[.gz]>",
		Short: "Load accession to taxon mappings from a SILVA taxmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				seeder := application.NewSeedService(s.cache, app.log.WithField("component", "seed"))

				var report application.SeedReport
				err := runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Seeding accessions", !noProgress, app.log,
					func(ctx context.Context, progress ports.Progress) error {
						var err error
						report, err = seeder.Seed(ctx, dump.OpenSilvaTaxmap(args[0]), progress)
						return err
					})
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "inserted: %d  updated: %d  unchanged: %d\n",
					report.Inserted, report.Updated, report.Unchanged)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw the progress display")
	return cmd
}

func newCacheGetCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <token>",
		Short: "Show the cached record of an accession",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				record, err := s.service.Accession(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := accessionOutput{
					Accession: record.ID.String(),
					State:     record.Resolution.State().String(),
				}
				if taxon, ok := record.Resolution.TaxonID(); ok {
					out.TaxonID = &taxon
				}
				if record.HasHitDefinition {
					def := record.HitDefinition
					out.HitDefinition = &def
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), out)
				}

				taxon := "-"
				if out.TaxonID != nil {
					taxon = fmt.Sprintf("%d", *out.TaxonID)
				}
				definition := "-"
				if out.HitDefinition != nil {
					definition = *out.HitDefinition
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", out.Accession, out.State, taxon, definition)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}
