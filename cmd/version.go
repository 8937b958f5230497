package cmd

import (
	"fmt"

	"github.com/bnema/taxon-resolver-cli/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			annotationSkipWire: "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "txr %s\n", version.Version)
			return err
		},
	}
}
