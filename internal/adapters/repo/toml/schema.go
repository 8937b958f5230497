package toml

import (
	"fmt"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
)

const currentSchemaVersion = 1

type journalSchema struct {
	Version int         `toml:"version"`
	Runs    []runSchema `toml:"runs"`
}

func (s *journalSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s journalSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported run journal version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type runSchema struct {
	StartedAt     string `toml:"started_at"`
	FinishedAt    string `toml:"finished_at"`
	Context       string `toml:"context"`
	Requested     int    `toml:"requested"`
	AlreadyCached int    `toml:"already_cached"`
	Resolved      int    `toml:"resolved"`
	Unidentified  int    `toml:"unidentified"`
	Pending       int    `toml:"pending"`
	Batches       int    `toml:"batches"`
	FailedBatches int    `toml:"failed_batches"`
	Aborted       bool   `toml:"aborted,omitempty"`
}

func toSchema(run domain.RunSummary) runSchema {
	return runSchema{
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		Context:       string(run.Context),
		Requested:     run.Requested,
		AlreadyCached: run.AlreadyCached,
		Resolved:      run.Resolved,
		Unidentified:  run.Unidentified,
		Pending:       run.Pending,
		Batches:       run.Batches,
		FailedBatches: run.FailedBatches,
		Aborted:       run.Aborted,
	}
}

func fromSchema(run runSchema) domain.RunSummary {
	return domain.RunSummary{
		StartedAt:     parseTime(run.StartedAt),
		FinishedAt:    parseTime(run.FinishedAt),
		Context:       domain.RunContext(run.Context),
		Requested:     run.Requested,
		AlreadyCached: run.AlreadyCached,
		Resolved:      run.Resolved,
		Unidentified:  run.Unidentified,
		Pending:       run.Pending,
		Batches:       run.Batches,
		FailedBatches: run.FailedBatches,
		Aborted:       run.Aborted,
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}
