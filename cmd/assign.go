package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/spf13/cobra"
)

type assignmentOutput struct {
	Accessions     []string  `json:"accessions"`
	HitDefinitions []*string `json:"hit_definitions,omitempty"`
	TaxonID        *int      `json:"taxon_id"`
	TaxonName      string    `json:"taxon_name,omitempty"`
	NotFound       []string  `json:"not_found,omitempty"`
}

func newAssignCmd(app *app) *cobra.Command {
	var fetch bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "assign tokens...",
		Short: "Attach hit definitions and a consensus taxon to one assignment",
		Long: "Arguments are the accessions of the hits of one sequence, separately or as comma " +
			"separated cells. Only cached accessions count unless --fetch is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tokens []string
			for _, arg := range args {
				tokens = append(tokens, domain.SplitTokenCell(arg)...)
			}

			return withSession(app, func(s *session) error {
				ctx := cmd.Context()
				enricher := application.NewEnricher(s.cache, s.consensus(), app.log.WithField("component", "enricher"))

				var assignment domain.Assignment
				notFound, err := enricher.Enrich(ctx, tokens, &assignment)
				if err != nil {
					return err
				}

				if fetch && len(notFound) > 0 {
					resolver, err := s.resolver(ctx)
					if err != nil {
						return err
					}
					req := application.ResolveRequest{ImportContext: true}
					for _, id := range notFound {
						if id.Kind == domain.KindProtein {
							req.Protein = append(req.Protein, id.Token)
						} else {
							req.Nucleotide = append(req.Nucleotide, id.Token)
						}
					}
					result, err := resolver.Resolve(ctx, req)
					if err != nil {
						return err
					}
					if err := s.service.RecordRun(ctx, result.Summary); err != nil {
						return err
					}

					assignment = domain.Assignment{}
					if notFound, err = enricher.Enrich(ctx, tokens, &assignment); err != nil {
						return err
					}
				}

				out := assignmentOutput{
					Accessions:     assignment.Accessions,
					HitDefinitions: assignment.HitDefinitions,
					TaxonID:        assignment.TaxonID,
				}
				for _, id := range notFound {
					out.NotFound = append(out.NotFound, id.String())
				}
				if taxon, ok := assignment.Taxon(); ok {
					node, err := s.taxa.Get(ctx, taxon)
					switch {
					case err == nil:
						out.TaxonName = node.ScientificName()
					case !errors.Is(err, domain.ErrTaxonNotFound):
						return err
					}
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), out)
				}
				return writeAssignment(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().BoolVar(&fetch, "fetch", false, "Fetch accessions missing from the cache, then assign again")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeAssignment(w io.Writer, out assignmentOutput) error {
	taxon := "none"
	if out.TaxonID != nil {
		taxon = fmt.Sprintf("%d", *out.TaxonID)
		if out.TaxonName != "" {
			taxon += " (" + out.TaxonName + ")"
		}
	}
	if _, err := fmt.Fprintf(w, "taxon: %s\n", taxon); err != nil {
		return err
	}

	for i, accession := range out.Accessions {
		definition := "-"
		if i < len(out.HitDefinitions) && out.HitDefinitions[i] != nil {
			definition = *out.HitDefinitions[i]
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", accession, definition); err != nil {
			return err
		}
	}
	if len(out.NotFound) > 0 {
		_, err := fmt.Fprintf(w, "not cached: %s\n", strings.Join(out.NotFound, ", "))
		return err
	}
	return nil
}
