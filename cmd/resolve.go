package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/spf13/cobra"
)

var errNoAccessions = errors.New("no accessions given")

func newResolveCmd(app *app) *cobra.Command {
	var file string
	var asJSON bool
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "resolve [tokens...]",
		Short: "Fetch taxa for accessions the cache does not know yet",
		Long: "Each argument or file line is a cell of comma separated accessions. Protein accessions " +
			"take a p: prefix. Cached accessions are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cells := args
			if file != "" {
				lines, err := readCells(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				cells = append(cells, lines...)
			}
			if len(cells) == 0 {
				return errNoAccessions
			}

			return withSession(app, func(s *session) error {
				resolver, err := s.resolver(cmd.Context())
				if err != nil {
					return err
				}

				var result application.ResolveResult
				var invalid []string
				runErr := runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Resolving accessions", !asJSON && !noProgress, app.log,
					func(ctx context.Context, progress ports.Progress) error {
						var err error
						result, invalid, err = application.Prefetch(ctx, resolver, cells, progress)
						return err
					})

				return finishRun(cmd, s, result, invalid, asJSON, runErr)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read accession cells from a file, one per line (- for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw the progress display")

	return cmd
}

// finishRun records the run when it had work and prints it. A run that stopped early is still
// recorded and printed before its error is returned.
func finishRun(cmd *cobra.Command, s *session, result application.ResolveResult, invalid []string, asJSON bool, runErr error) error {
	if len(invalid) > 0 {
		s.app.log.WithField("tokens", strings.Join(invalid, ",")).Warn("invalid accessions skipped")
	}
	if result.Summary.StartedAt.IsZero() {
		return runErr
	}

	if result.Summary.Requested > 0 {
		if err := s.service.RecordRun(cmd.Context(), result.Summary); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if err := writeRun(cmd.OutOrStdout(), newRunOutput(result, invalid), asJSON); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func readCells(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open accession file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var cells []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cells = append(cells, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read accession file: %w", err)
	}
	return cells, nil
}
