package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports/mocks"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var errServiceUnavailable = errors.New("503 service unavailable")

type fetcherFunc func(ctx context.Context, kind domain.Kind, tokens []string) ([]domain.AccessionRecord, error)

func (f fetcherFunc) FetchSummaries(ctx context.Context, kind domain.Kind, tokens []string) ([]domain.AccessionRecord, error) {
	return f(ctx, kind, tokens)
}

func (f fetcherFunc) HasAPIKey() bool { return false }

func allKnown(tokens ...[]string) map[string]int {
	taxa := map[string]int{}
	for _, set := range tokens {
		for i, token := range set {
			taxa[token] = 1000 + i
		}
	}
	return taxa
}

func TestResolverImportResolvesAndCachesEveryToken(t *testing.T) {
	nucl := tokenRange("N", 120)
	prot := tokenRange("P", 30)
	cache := newMemCache()
	fetcher := &scriptedFetcher{taxa: allKnown(nucl, prot)}

	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    nucl,
		Protein:       prot,
		ImportContext: true,
	})
	require.NoError(t, err)

	assert.Len(t, result.Resolved, 150)
	assert.Equal(t, 150, cache.len())
	assert.Equal(t, 4, fetcher.callCount())
	assert.LessOrEqual(t, fetcher.maxSeen, BatchSize)

	record, ok := cache.record(domain.KindProtein, "P00003")
	require.True(t, ok)
	taxon, resolved := record.Resolution.TaxonID()
	require.True(t, resolved)
	assert.Equal(t, 1003, taxon)
	assert.Equal(t, "definition of P00003", record.HitDefinition)

	assert.Equal(t, domain.RunContextImport, result.Summary.Context)
	assert.Equal(t, 150, result.Summary.Requested)
	assert.Equal(t, 150, result.Summary.Resolved)
	assert.Equal(t, 4, result.Summary.Batches)
}

func TestResolverStampsRunWithClock(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	clock := mocks.NewMockClock(t)
	clock.EXPECT().Now().Return(started).Once()
	clock.EXPECT().Now().Return(finished).Once()
	fetcher := &scriptedFetcher{taxa: map[string]int{"N1": 562}}

	result, err := NewResolver(newMemCache(), fetcher, WithClock(clock)).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    []string{"N1"},
		ImportContext: true,
	})
	require.NoError(t, err)

	assert.Equal(t, started, result.Summary.StartedAt)
	assert.Equal(t, finished, result.Summary.FinishedAt)
	assert.Equal(t, 1500*time.Millisecond, result.Summary.Duration())
}

func TestResolverSecondImportMakesNoRemoteCalls(t *testing.T) {
	tokens := tokenRange("N", 75)
	cache := newMemCache()

	_, err := NewResolver(cache, &scriptedFetcher{taxa: allKnown(tokens)}).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
	})
	require.NoError(t, err)

	fetcher := mocks.NewMockSummaryFetcher(t)
	fetcher.EXPECT().HasAPIKey().Return(false).Once()

	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Resolved)
	assert.Equal(t, 75, result.Summary.AlreadyCached)
}

func TestResolverConcurrencyFollowsAPIKey(t *testing.T) {
	assert.Equal(t, ConcurrencyWithoutKey, NewResolver(newMemCache(), &scriptedFetcher{}).Concurrency())
	assert.Equal(t, ConcurrencyWithKey, NewResolver(newMemCache(), &scriptedFetcher{apiKey: true}).Concurrency())
	assert.Equal(t, 7, NewResolver(newMemCache(), &scriptedFetcher{}, WithConcurrency(7)).Concurrency())
}

func TestResolverWaveBoundsInFlightCalls(t *testing.T) {
	tokens := tokenRange("N", 50*9)
	fetcher := &scriptedFetcher{
		taxa: allKnown(tokens),
		fail: func(int, []string) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	}

	_, err := NewResolver(newMemCache(), fetcher).Resolve(context.Background(), ResolveRequest{Nucleotide: tokens, ImportContext: true})
	require.NoError(t, err)

	assert.Equal(t, 9, fetcher.callCount())
	assert.LessOrEqual(t, int(fetcher.peak.Load()), ConcurrencyWithoutKey)
}

func TestResolverTotalFailureCachesPendingPlaceholders(t *testing.T) {
	tokens := tokenRange("N", 60)
	cache := newMemCache()
	fetcher := &scriptedFetcher{fail: func(int, []string) error { return errServiceUnavailable }}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	result, err := NewResolver(cache, fetcher, WithLogger(logger)).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2*MaxBatchAttempts, fetcher.callCount())
	assert.Empty(t, result.Resolved)
	assert.Equal(t, 2, result.Summary.FailedBatches)
	assert.Equal(t, 60, result.Summary.Pending)
	assert.False(t, result.Summary.Aborted)

	record, ok := cache.record(domain.KindNucleotide, "N00059")
	require.True(t, ok)
	assert.True(t, record.Resolution.IsPending())

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "unable to fetch accession summaries" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestResolverAbortsWhenServiceIsDown(t *testing.T) {
	tokens := tokenRange("N", 50*20)
	cache := newMemCache()
	fetcher := &scriptedFetcher{fail: func(int, []string) error { return errServiceUnavailable }}

	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
	})
	require.ErrorIs(t, err, ErrServiceDown)
	assert.Contains(t, err.Error(), "service appears down")

	assert.Equal(t, 15*MaxBatchAttempts, fetcher.callCount())
	assert.True(t, result.Summary.Aborted)
	assert.Equal(t, 15, result.Summary.FailedBatches)
	assert.Equal(t, 15*BatchSize, cache.len())
}

func TestResolverDoesNotAbortWhenOneEarlyBatchSucceeded(t *testing.T) {
	tokens := tokenRange("N", 50*20)
	fetcher := &scriptedFetcher{
		taxa: allKnown(tokens),
		fail: func(_ int, batch []string) error {
			if batch[0] == "N00000" {
				return nil
			}
			return errServiceUnavailable
		},
	}

	result, err := NewResolver(newMemCache(), fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 19, result.Summary.FailedBatches)
	assert.Len(t, result.Resolved, 50)
}

func TestResolverPartialFailureMarksMissingUnidentified(t *testing.T) {
	tokens := []string{"KNOWN1", "KNOWN2", "GONE1"}
	cache := newMemCache()
	fetcher := &scriptedFetcher{taxa: map[string]int{"KNOWN1": 562, "KNOWN2": 9606}}

	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.AccessionID{
		domain.NewAccessionID(domain.KindNucleotide, "KNOWN1"),
		domain.NewAccessionID(domain.KindNucleotide, "KNOWN2"),
	}, result.Resolved)
	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, 1, result.Summary.Unidentified)

	record, ok := cache.record(domain.KindNucleotide, "GONE1")
	require.True(t, ok)
	assert.Equal(t, domain.ResolutionUnidentified, record.Resolution.State())
}

func TestResolverRepeatedErrorsWithPartialRecordsKeepLeftoversPending(t *testing.T) {
	cache := newMemCache()
	fetcher := &scriptedFetcher{
		taxa:    map[string]int{"KNOWN": 562},
		partial: func(int) error { return errors.New("resolve merged taxa: status 503") },
	}

	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    []string{"KNOWN", "MERGED"},
		ImportContext: true,
	})
	require.NoError(t, err)

	assert.Equal(t, MaxBatchAttempts, fetcher.callCount())
	assert.Equal(t, []domain.AccessionID{domain.NewAccessionID(domain.KindNucleotide, "KNOWN")}, result.Resolved)
	assert.Equal(t, 1, result.Summary.Pending)
	assert.Zero(t, result.Summary.Unidentified)
	assert.Zero(t, result.Summary.FailedBatches)
	assert.False(t, result.Summary.Aborted)

	record, ok := cache.record(domain.KindNucleotide, "MERGED")
	require.True(t, ok)
	assert.True(t, record.Resolution.IsPending())

	known, ok := cache.record(domain.KindNucleotide, "KNOWN")
	require.True(t, ok)
	taxon, resolved := known.Resolution.TaxonID()
	require.True(t, resolved)
	assert.Equal(t, 562, taxon)
}

func TestResolverRetriesShrinkWorkingSet(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	fetcher := fetcherFunc(func(_ context.Context, kind domain.Kind, tokens []string) ([]domain.AccessionRecord, error) {
		mu.Lock()
		calls = append(calls, append([]string(nil), tokens...))
		attempt := len(calls)
		mu.Unlock()

		if attempt == 1 {
			return []domain.AccessionRecord{{ID: domain.NewAccessionID(kind, "A"), Resolution: domain.Resolved(10)}}, errServiceUnavailable
		}
		records := make([]domain.AccessionRecord, 0, len(tokens))
		for _, token := range tokens {
			records = append(records, domain.AccessionRecord{ID: domain.NewAccessionID(kind, token), Resolution: domain.Resolved(20)})
		}
		return records, nil
	})

	cache := newMemCache()
	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    []string{"A", "B", "C"},
		ImportContext: true,
	})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, calls[0])
	assert.ElementsMatch(t, []string{"B", "C"}, calls[1])
	assert.Len(t, result.Resolved, 3)

	record, ok := cache.record(domain.KindNucleotide, "A")
	require.True(t, ok)
	assert.Equal(t, domain.Resolved(10), record.Resolution)
}

type racingCache struct {
	*memCache
}

func (c racingCache) ExistingTokens(context.Context, domain.Kind, []string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func TestResolverDuplicateInsertFallsBackToUpdate(t *testing.T) {
	id := domain.NewAccessionID(domain.KindNucleotide, "RACE1")
	inner := newMemCache(domain.NewPendingRecord(id))
	fetcher := &scriptedFetcher{taxa: map[string]int{"RACE1": 562}}

	_, err := NewResolver(racingCache{inner}, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    []string{"RACE1"},
		ImportContext: true,
	})
	require.NoError(t, err)

	record, ok := inner.record(domain.KindNucleotide, "RACE1")
	require.True(t, ok)
	assert.Equal(t, domain.Resolved(562), record.Resolution)
	assert.Equal(t, int32(1), inner.updates.Load())
	assert.Equal(t, 1, inner.len())
}

func TestResolverPlaceholderDoesNotOverwriteConcurrentResult(t *testing.T) {
	id := domain.NewAccessionID(domain.KindNucleotide, "RACE2")
	inner := newMemCache(domain.AccessionRecord{ID: id, Resolution: domain.Resolved(9606)})
	fetcher := &scriptedFetcher{fail: func(int, []string) error { return errServiceUnavailable }}

	_, err := NewResolver(racingCache{inner}, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    []string{"RACE2"},
		ImportContext: true,
	})
	require.NoError(t, err)

	record, _ := inner.record(domain.KindNucleotide, "RACE2")
	assert.Equal(t, domain.Resolved(9606), record.Resolution)
}

func TestResolverConcurrentImportsConverge(t *testing.T) {
	tokens := tokenRange("N", 200)
	cache := newMemCache()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetcher := &scriptedFetcher{taxa: allKnown(tokens)}
			_, errs[i] = NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
				Nucleotide:    tokens,
				ImportContext: true,
			})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 200, cache.len())
	for _, token := range tokens {
		record, ok := cache.record(domain.KindNucleotide, token)
		require.True(t, ok)
		assert.Equal(t, domain.ResolutionResolved, record.Resolution.State())
	}
}

func TestResolverRetryContextUpdatesInPlace(t *testing.T) {
	pending := []domain.AccessionRecord{
		domain.NewPendingRecord(domain.NewAccessionID(domain.KindNucleotide, "R1")),
		domain.NewPendingRecord(domain.NewAccessionID(domain.KindNucleotide, "R2")),
	}
	cache := newMemCache(pending...)
	fetcher := &scriptedFetcher{taxa: map[string]int{"R1": 562}}

	result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
		Nucleotide: []string{"R1", "R2"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunContextRetry, result.Summary.Context)
	assert.Equal(t, int32(0), cache.inserts.Load())
	r1, _ := cache.record(domain.KindNucleotide, "R1")
	assert.Equal(t, domain.Resolved(562), r1.Resolution)
	r2, _ := cache.record(domain.KindNucleotide, "R2")
	assert.Equal(t, domain.ResolutionUnidentified, r2.Resolution.State())
}

func TestResolverReportsDispatchProgress(t *testing.T) {
	tokens := tokenRange("N", 400)
	progress := &recordingProgress{}

	_, err := NewResolver(newMemCache(), &scriptedFetcher{taxa: allKnown(tokens)}).Resolve(context.Background(), ResolveRequest{
		Nucleotide:    tokens,
		ImportContext: true,
		Progress:      progress,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{37, 75, 100}, progress.percents)
	assert.Contains(t, progress.steps, "Fetching nucleotide accessions")
}

func TestResolverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(newMemCache(), &scriptedFetcher{}).Resolve(ctx, ResolveRequest{Nucleotide: []string{"A"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolverEveryTokenGetsAnOutcome(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 180).Draw(t, "tokens")
		tokens := tokenRange("N", n)
		known := map[string]int{}
		for _, token := range tokens {
			if rapid.Bool().Draw(t, "known") {
				known[token] = 562
			}
		}

		cache := newMemCache()
		fetcher := &scriptedFetcher{taxa: known}
		result, err := NewResolver(cache, fetcher).Resolve(context.Background(), ResolveRequest{
			Nucleotide:    tokens,
			ImportContext: true,
		})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if cache.len() != n {
			t.Fatalf("cached %d records, want %d", cache.len(), n)
		}
		if len(result.Resolved) != len(known) {
			t.Fatalf("resolved %d, want %d", len(result.Resolved), len(known))
		}
		if fetcher.maxSeen > BatchSize {
			t.Fatalf("batch of %d tokens exceeds cap", fetcher.maxSeen)
		}
	})
}
