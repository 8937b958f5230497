package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newConsensusCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consensus taxid[:weight]...",
		Short: "Find the taxon a set of weighted taxa agree on",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			weights, err := parseWeights(args)
			if err != nil {
				return err
			}

			return withSession(app, func(s *session) error {
				ctx := cmd.Context()
				taxon, ok, err := s.consensus().Resolve(ctx, weights)
				if err != nil {
					return err
				}
				if !ok {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "no consensus")
					return err
				}

				name := ""
				node, err := s.taxa.Get(ctx, taxon)
				switch {
				case err == nil:
					name = " " + node.ScientificName()
				case !errors.Is(err, domain.ErrTaxonNotFound):
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d%s\n", taxon, name)
				return err
			})
		},
	}

	return cmd
}

func parseWeights(args []string) (map[int]int, error) {
	weights := make(map[int]int, len(args))
	for _, arg := range args {
		rawID, rawWeight, hasWeight := strings.Cut(arg, ":")
		id, err := strconv.Atoi(strings.TrimSpace(rawID))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid taxon id %q", rawID)
		}

		weight := 1
		if hasWeight {
			weight, err = strconv.Atoi(strings.TrimSpace(rawWeight))
			if err != nil || weight <= 0 {
				return nil, fmt.Errorf("invalid weight %q for taxon %d", rawWeight, id)
			}
		}
		weights[id] += weight
	}
	return weights, nil
}
