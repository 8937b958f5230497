package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAPIKeyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the stored NCBI API key",
	}

	cmd.AddCommand(newAPIKeySetCmd(app), newAPIKeyClearCmd(app))
	return cmd
}

func newAPIKeySetCmd(app *app) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set [key]",
		Short: "Store the API key (pass first, file fallback)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			switch {
			case fromStdin:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read api key from stdin: %w", err)
				}
				value = line
			case len(args) == 1:
				value = args[0]
			default:
				return fmt.Errorf("api key is required (argument or --stdin)")
			}

			if err := app.credentialService().SetAPIKey(cmd.Context(), strings.TrimSpace(value)); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "api key stored")
			return err
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the key from stdin")
	return cmd
}

func newAPIKeyClearCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.credentialService().ClearAPIKey(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "api key cleared")
			return err
		},
	}
}
