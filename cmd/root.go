package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	app := &app{}

	rootCmd := &cobra.Command{
		Use:   "txr",
		Short: "Taxon resolver (txr): map sequence accessions to taxa",
		Long: "txr resolves nucleotide and protein accessions to NCBI taxa, keeps the answers in a local cache, " +
			"and derives a consensus taxon for a set of hits from their shared ancestry.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationSkipWire] == "true" {
				return nil
			}
			return app.wire(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.opts.configFile, "config", "", "Config file (default ~/.txr/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&app.opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newResolveCmd(app),
		newRetryCmd(app),
		newAssignCmd(app),
		newConsensusCmd(app),
		newTaxonomyCmd(app),
		newCacheCmd(app),
		newStatusCmd(app),
		newAPIKeyCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
