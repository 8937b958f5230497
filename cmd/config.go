package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the txr config file",
	}

	cmd.AddCommand(newConfigInitCmd(app), newConfigShowCmd(app))
	return cmd
}

func newConfigInitCmd(app *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file holding the defaults",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			annotationOptionalConfig: "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := app.opts.configFile
			if path == "" {
				path = config.DefaultPath(app.home)
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := app.settings
			file := s.ConfigFile
			if file == "" {
				file = "(none)"
			}
			concurrency := "auto"
			if s.Concurrency > 0 {
				concurrency = fmt.Sprintf("%d", s.Concurrency)
			}

			rows := [][2]string{
				{"config file", file},
				{config.EutilsBaseURLKey, s.EutilsBaseURL},
				{config.EutilsRequestTimeoutKey, s.RequestTimeout.String()},
				{config.CacheBackendKey, s.CacheBackend},
				{config.CacheSQLitePathKey, s.SQLitePath},
				{config.CacheBadgerDirKey, s.BadgerDir},
				{config.JournalPathKey, s.JournalPath},
				{config.JournalKeepKey, fmt.Sprintf("%d", s.JournalKeep)},
				{config.LogLevelKey, s.LogLevel.String()},
				{config.SecretsDirKey, s.SecretsDir},
				{config.APIKeyKey, maskSecret(s.APIKey)},
				{config.ResolverConcurrencyKey, concurrency},
				{config.DistrustAboveKey, fmt.Sprintf("%d", s.DistrustAbove)},
			}

			var b strings.Builder
			for _, row := range rows {
				fmt.Fprintf(&b, "%-26s %s\n", row[0]+":", row[1])
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), b.String())
			return err
		},
	}
}

func maskSecret(value string) string {
	switch {
	case value == "":
		return "(unset)"
	case len(value) <= 4:
		return "****"
	default:
		return "****" + value[len(value)-4:]
	}
}
