package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrServiceDown = errors.New("service appears down")

const (
	BatchSize             = 50
	ExistenceCheckChunk   = 5000
	MaxBatchAttempts      = 3
	ConcurrencyWithoutKey = 3
	ConcurrencyWithKey    = 10
	abortAfterWaves       = 5
)

type ResolveRequest struct {
	Nucleotide    []string
	Protein       []string
	ImportContext bool
	Progress      ports.Progress
}

type ResolveResult struct {
	Resolved []domain.AccessionID
	Summary  domain.RunSummary
}

type ResolverOption func(*Resolver)

func WithLogger(log logrus.FieldLogger) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

func WithClock(clock ports.Clock) ResolverOption {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithConcurrency overrides the wave size otherwise derived from the presence
// of an API key.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

type Resolver struct {
	cache       ports.AccessionCache
	fetcher     ports.SummaryFetcher
	log         logrus.FieldLogger
	clock       ports.Clock
	concurrency int
}

func NewResolver(cache ports.AccessionCache, fetcher ports.SummaryFetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:   cache,
		fetcher: fetcher,
		log:     discardLogger(),
		clock:   ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency == 0 {
		r.concurrency = ConcurrencyWithoutKey
		if fetcher.HasAPIKey() {
			r.concurrency = ConcurrencyWithKey
		}
	}
	return r
}

func (r *Resolver) Concurrency() int {
	return r.concurrency
}

// Resolve fetches the given accessions remotely and writes the outcome of
// every token to the cache. It returns the accessions that were resolved.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	progress := req.Progress
	if progress == nil {
		progress = ports.NopProgress{}
	}

	nucl := uniqueTokens(req.Nucleotide)
	prot := uniqueTokens(req.Protein)

	tally := &resolveTally{}
	tally.summary = domain.RunSummary{
		StartedAt: r.clock.Now(),
		Context:   domain.RunContextRetry,
		Requested: len(nucl) + len(prot),
	}
	if req.ImportContext {
		tally.summary.Context = domain.RunContextImport

		progress.Step("Checking accession cache")
		var err error
		if nucl, err = r.stripCached(ctx, domain.KindNucleotide, nucl); err != nil {
			return r.finish(tally, false), err
		}
		if prot, err = r.stripCached(ctx, domain.KindProtein, prot); err != nil {
			return r.finish(tally, false), err
		}
		tally.summary.AlreadyCached = tally.summary.Requested - len(nucl) - len(prot)
	}

	run := &resolveRun{
		importContext: req.ImportContext,
		progress:      progress,
		total:         len(nucl) + len(prot),
		tally:         tally,
	}

	for _, set := range []struct {
		kind   domain.Kind
		tokens []string
	}{
		{kind: domain.KindNucleotide, tokens: nucl},
		{kind: domain.KindProtein, tokens: prot},
	} {
		if len(set.tokens) == 0 {
			continue
		}

		progress.Step(fmt.Sprintf("Fetching %s accessions", set.kind.Database()))
		if err := r.resolveKind(ctx, run, set.kind, set.tokens); err != nil {
			return r.finish(tally, errors.Is(err, ErrServiceDown)), err
		}
	}

	return r.finish(tally, false), nil
}

func (r *Resolver) finish(tally *resolveTally, aborted bool) ResolveResult {
	tally.mu.Lock()
	defer tally.mu.Unlock()

	tally.summary.FinishedAt = r.clock.Now()
	tally.summary.Aborted = aborted
	tally.summary.Resolved = len(tally.resolved)

	return ResolveResult{
		Resolved: slices.Clone(tally.resolved),
		Summary:  tally.summary,
	}
}

func (r *Resolver) stripCached(ctx context.Context, kind domain.Kind, tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return tokens, nil
	}

	remaining := make([]string, 0, len(tokens))
	for _, chunk := range domain.Chunk(tokens, ExistenceCheckChunk) {
		existing, err := r.cache.ExistingTokens(ctx, kind, chunk)
		if err != nil {
			return nil, fmt.Errorf("check cached %s accessions: %w", kind.Database(), err)
		}
		for _, token := range chunk {
			if _, ok := existing[token]; !ok {
				remaining = append(remaining, token)
			}
		}
	}

	return remaining, nil
}

func (r *Resolver) resolveKind(ctx context.Context, run *resolveRun, kind domain.Kind, tokens []string) error {
	batches := domain.Chunk(tokens, BatchSize)
	for waveIndex, wave := range domain.Chunk(batches, r.concurrency) {
		if err := ctx.Err(); err != nil {
			return err
		}

		run.dispatch(wave)
		if err := r.runWave(ctx, run, kind, wave); err != nil {
			return err
		}

		processed, failed := run.tally.batchCounts()
		r.log.WithFields(logrus.Fields{
			"kind":      kind.Database(),
			"wave":      waveIndex,
			"processed": processed,
			"failed":    failed,
		}).Debug("fetch wave complete")

		if processed >= abortAfterWaves*r.concurrency && failed == processed {
			r.log.WithField("batches", processed).Error("every batch failed, aborting")
			return fmt.Errorf("resolve %s accessions: %w", kind.Database(), ErrServiceDown)
		}
	}
	return nil
}

// runWave fetches all batches of a wave, the last one on the calling
// goroutine, and returns once every batch is settled.
func (r *Resolver) runWave(ctx context.Context, run *resolveRun, kind domain.Kind, wave [][]string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range wave[:len(wave)-1] {
		g.Go(func() error {
			return r.runBatch(gctx, run, kind, batch)
		})
	}

	inlineErr := r.runBatch(gctx, run, kind, wave[len(wave)-1])
	if err := g.Wait(); err != nil {
		return err
	}
	return inlineErr
}

func (r *Resolver) runBatch(ctx context.Context, run *resolveRun, kind domain.Kind, batch []string) error {
	working := slices.Clone(batch)
	log := r.log.WithField("kind", kind.Database())

	failures := 0
	obtained := 0
	for failures < MaxBatchAttempts && len(working) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if failures > 0 {
			log.WithFields(logrus.Fields{"attempt": failures + 1, "tokens": len(working)}).Debug("retrying batch")
		}

		records, err := r.fetcher.FetchSummaries(ctx, kind, working)
		records = onlyRequested(kind, working, records)
		if len(records) > 0 {
			if writeErr := r.writeFetched(ctx, run.importContext, records); writeErr != nil {
				return writeErr
			}
			working = withoutObtained(working, records)
			obtained += len(records)
			run.tally.addRecords(records)
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			log.WithError(err).Debug("summary service call failed")
			continue
		}
		break
	}

	if len(working) == 0 {
		run.tally.addBatch(false)
		return nil
	}

	ids := make([]domain.AccessionID, 0, len(working))
	for _, token := range working {
		ids = append(ids, domain.NewAccessionID(kind, token))
	}

	if failures == MaxBatchAttempts {
		log.WithFields(logrus.Fields{"attempt": failures, "tokens": len(working)}).Warn("unable to fetch accession summaries")
		run.tally.addBatch(obtained == 0)
		run.tally.addPending(len(ids))
		if !run.importContext {
			return nil
		}
		return r.writePlaceholders(ctx, run.importContext, placeholderRecords(ids, domain.NewPendingRecord))
	}

	log.WithField("tokens", len(working)).Info("no valid taxid found for some accessions")
	run.tally.addBatch(false)
	run.tally.addUnidentified(len(ids))
	return r.writePlaceholders(ctx, run.importContext, placeholderRecords(ids, domain.NewUnidentifiedRecord))
}

func (r *Resolver) writeFetched(ctx context.Context, importContext bool, records []domain.AccessionRecord) error {
	if !importContext {
		if err := r.cache.UpdateMany(ctx, records); err != nil {
			return fmt.Errorf("update fetched accessions: %w", err)
		}
		return nil
	}

	err := r.cache.InsertMany(ctx, records)
	var dupErr *domain.DuplicateAccessionError
	if errors.As(err, &dupErr) {
		r.log.WithField("tokens", len(dupErr.IDs)).Debug("accessions written concurrently, updating instead")
		if err := r.cache.UpdateMany(ctx, recordsWithIDs(records, dupErr.IDs)); err != nil {
			return fmt.Errorf("update concurrently inserted accessions: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert fetched accessions: %w", err)
	}
	return nil
}

func (r *Resolver) writePlaceholders(ctx context.Context, importContext bool, records []domain.AccessionRecord) error {
	if !importContext {
		if err := r.cache.UpdateMany(ctx, records); err != nil {
			return fmt.Errorf("update unresolved accessions: %w", err)
		}
		return nil
	}

	err := r.cache.InsertMany(ctx, records)
	if err != nil && !errors.Is(err, domain.ErrDuplicateAccession) {
		return fmt.Errorf("insert unresolved accessions: %w", err)
	}
	return nil
}

type resolveRun struct {
	importContext bool
	progress      ports.Progress
	total         int
	dispatched    int
	tally         *resolveTally
}

func (run *resolveRun) dispatch(wave [][]string) {
	for _, batch := range wave {
		run.dispatched += len(batch)
	}
	if run.total > 0 {
		run.progress.Percent(run.dispatched * 100 / run.total)
	}
}

type resolveTally struct {
	mu            sync.Mutex
	summary       domain.RunSummary
	resolved      []domain.AccessionID
	batches       int
	failedBatches int
}

func (t *resolveTally) addRecords(records []domain.AccessionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, record := range records {
		if record.Resolution.State() == domain.ResolutionUnidentified {
			t.summary.Unidentified++
			continue
		}
		t.resolved = append(t.resolved, record.ID)
	}
}

func (t *resolveTally) addBatch(failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.batches++
	t.summary.Batches++
	if failed {
		t.failedBatches++
		t.summary.FailedBatches++
	}
}

func (t *resolveTally) addPending(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Pending += n
}

func (t *resolveTally) addUnidentified(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Unidentified += n
}

func (t *resolveTally) batchCounts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batches, t.failedBatches
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	unique := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		unique = append(unique, token)
	}
	return unique
}

func onlyRequested(kind domain.Kind, requested []string, records []domain.AccessionRecord) []domain.AccessionRecord {
	if len(records) == 0 {
		return nil
	}

	wanted := make(map[string]struct{}, len(requested))
	for _, token := range requested {
		wanted[token] = struct{}{}
	}

	kept := make([]domain.AccessionRecord, 0, len(records))
	for _, record := range records {
		if record.ID.Kind != kind {
			continue
		}
		if _, ok := wanted[record.ID.Token]; !ok {
			continue
		}
		delete(wanted, record.ID.Token)
		kept = append(kept, record)
	}
	return kept
}

func withoutObtained(working []string, records []domain.AccessionRecord) []string {
	obtained := make(map[string]struct{}, len(records))
	for _, record := range records {
		obtained[record.ID.Token] = struct{}{}
	}
	remaining := make([]string, 0, len(working))
	for _, token := range working {
		if _, ok := obtained[token]; !ok {
			remaining = append(remaining, token)
		}
	}
	return remaining
}

func recordsWithIDs(records []domain.AccessionRecord, ids []domain.AccessionID) []domain.AccessionRecord {
	wanted := make(map[domain.AccessionID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	kept := make([]domain.AccessionRecord, 0, len(ids))
	for _, record := range records {
		if _, ok := wanted[record.ID]; ok {
			kept = append(kept, record)
		}
	}
	return kept
}

func placeholderRecords(ids []domain.AccessionID, build func(domain.AccessionID) domain.AccessionRecord) []domain.AccessionRecord {
	records := make([]domain.AccessionRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, build(id))
	}
	return records
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
