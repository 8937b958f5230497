package domain

import "time"

type RunContext string

const (
	RunContextImport RunContext = "import"
	RunContextRetry  RunContext = "retry"
)

type RunSummary struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	Context       RunContext
	Requested     int
	AlreadyCached int
	Resolved      int
	Unidentified  int
	Pending       int
	Batches       int
	FailedBatches int
	Aborted       bool
}

func (s RunSummary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.Before(s.StartedAt) {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
