package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/domain"
)

type runOutput struct {
	Context       domain.RunContext `json:"context"`
	Requested     int               `json:"requested"`
	AlreadyCached int               `json:"already_cached"`
	Resolved      int               `json:"resolved"`
	Unidentified  int               `json:"unidentified"`
	Pending       int               `json:"pending"`
	Batches       int               `json:"batches"`
	FailedBatches int               `json:"failed_batches"`
	Aborted       bool              `json:"aborted"`
	DurationMS    int64             `json:"duration_ms"`
	ResolvedIDs   []string          `json:"resolved_ids"`
	Invalid       []string          `json:"invalid,omitempty"`
}

func newRunOutput(result application.ResolveResult, invalid []string) runOutput {
	summary := result.Summary
	ids := make([]string, 0, len(result.Resolved))
	for _, id := range result.Resolved {
		ids = append(ids, id.String())
	}

	return runOutput{
		Context:       summary.Context,
		Requested:     summary.Requested,
		AlreadyCached: summary.AlreadyCached,
		Resolved:      summary.Resolved,
		Unidentified:  summary.Unidentified,
		Pending:       summary.Pending,
		Batches:       summary.Batches,
		FailedBatches: summary.FailedBatches,
		Aborted:       summary.Aborted,
		DurationMS:    summary.Duration().Milliseconds(),
		ResolvedIDs:   ids,
		Invalid:       invalid,
	}
}

func writeRun(w io.Writer, out runOutput, asJSON bool) error {
	if asJSON {
		return writeJSON(w, out)
	}

	_, err := fmt.Fprintf(w,
		"requested: %d  cached: %d  resolved: %d  unidentified: %d  pending: %d\nbatches: %d  failed: %d\n",
		out.Requested, out.AlreadyCached, out.Resolved, out.Unidentified, out.Pending,
		out.Batches, out.FailedBatches,
	)
	if err != nil {
		return err
	}
	for _, raw := range out.Invalid {
		if _, err := fmt.Fprintf(w, "invalid accession: %s\n", raw); err != nil {
			return err
		}
	}
	if out.Pending > 0 {
		_, err = fmt.Fprintln(w, "some accessions stay pending, run `txr retry` later")
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}
