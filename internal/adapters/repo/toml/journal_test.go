package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T, path string, keep int) *Journal {
	t.Helper()

	config := viper.New()
	config.Set(PathKey, path)
	if keep > 0 {
		config.Set(KeepKey, keep)
	}
	journal, err := NewJournal(config)
	require.NoError(t, err)
	return journal
}

func sampleRun(started time.Time, requested int) domain.RunSummary {
	return domain.RunSummary{
		StartedAt:     started,
		FinishedAt:    started.Add(90 * time.Second),
		Context:       domain.RunContextImport,
		Requested:     requested,
		AlreadyCached: 3,
		Resolved:      requested - 5,
		Unidentified:  2,
		Pending:       0,
		Batches:       4,
		FailedBatches: 1,
	}
}

func TestJournalRoundTripNewestFirst(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, filepath.Join(t.TempDir(), "runs.toml"), 0)
	start := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	first := sampleRun(start, 120)
	second := sampleRun(start.Add(time.Hour), 40)
	second.Context = domain.RunContextRetry
	second.Aborted = true

	require.NoError(t, journal.Append(context.Background(), first))
	require.NoError(t, journal.Append(context.Background(), second))

	runs, err := journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.RunSummary{second, first}, runs)

	latest, err := journal.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.RunSummary{second}, latest)
}

func TestJournalKeepsOnlyConfiguredRuns(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, filepath.Join(t.TempDir(), "runs.toml"), 3)
	start := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, journal.Append(context.Background(), sampleRun(start.Add(time.Duration(i)*time.Minute), 10+i)))
	}

	runs, err := journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 14, runs[0].Requested)
	assert.Equal(t, 12, runs[2].Requested)
}

func TestJournalRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewJournal(viper.New())
	require.Error(t, err)
	assert.ErrorContains(t, err, "journal path is empty")

	config := viper.New()
	config.Set(PathKey, filepath.Join(t.TempDir(), "runs.toml"))
	config.Set(KeepKey, 0)
	_, err = NewJournal(config)
	require.Error(t, err)
	assert.ErrorContains(t, err, "journal keep must be positive")
}

func TestJournalMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, filepath.Join(t.TempDir(), "missing", "runs.toml"), 0)

	runs, err := journal.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestJournalWritesVersionedOwnerOnlyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "runs.toml")
	journal := newTestJournal(t, path, 0)
	require.NoError(t, journal.Append(context.Background(), sampleRun(time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC), 7)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "[[runs]]")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(journalFileMode), info.Mode().Perm())
}

func TestJournalMalformedFileReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.toml")
	require.NoError(t, os.WriteFile(path, []byte("runs = ["), 0o600))

	_, err := newTestJournal(t, path, 0).Recent(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode run journal")
}

func TestJournalFutureVersionReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"version = 7",
		"runs = []",
		"",
	}, "\n")), 0o600))

	_, err := newTestJournal(t, path, 0).Recent(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported run journal version")
}

func TestJournalAppendCanceledContext(t *testing.T) {
	t.Parallel()

	journal := newTestJournal(t, filepath.Join(t.TempDir(), "runs.toml"), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := journal.Append(ctx, domain.RunSummary{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestJournalConcurrentAppendsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.toml")
	journalA := newTestJournal(t, path, 500)
	journalB := newTestJournal(t, path, 500)

	const perJournal = 50
	start := make(chan struct{})
	errCh := make(chan error, perJournal*2)
	var wg sync.WaitGroup
	for _, journal := range []*Journal{journalA, journalB} {
		wg.Add(1)
		go func(journal *Journal) {
			defer wg.Done()
			<-start
			for i := 0; i < perJournal; i++ {
				errCh <- journal.Append(context.Background(), domain.RunSummary{Requested: i})
			}
		}(journal)
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	runs, err := journalA.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, perJournal*2)
}
