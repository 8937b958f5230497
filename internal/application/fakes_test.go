package application

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/stretchr/testify/mock"
)

func mockAnyContext() interface{} {
	return mock.MatchedBy(func(context.Context) bool { return true })
}

type memCache struct {
	mu      sync.Mutex
	records map[domain.AccessionID]domain.AccessionRecord
	inserts atomic.Int32
	updates atomic.Int32
}

var _ ports.AccessionCache = (*memCache)(nil)

func newMemCache(records ...domain.AccessionRecord) *memCache {
	c := &memCache{records: map[domain.AccessionID]domain.AccessionRecord{}}
	for _, record := range records {
		c.records[record.ID] = record
	}
	return c
}

func (c *memCache) Get(_ context.Context, id domain.AccessionID) (domain.AccessionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[id]
	if !ok {
		return domain.AccessionRecord{}, domain.ErrAccessionNotFound
	}
	return record, nil
}

func (c *memCache) GetMany(_ context.Context, ids []domain.AccessionID) (map[domain.AccessionID]domain.AccessionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := map[domain.AccessionID]domain.AccessionRecord{}
	for _, id := range ids {
		if record, ok := c.records[id]; ok {
			found[id] = record
		}
	}
	return found, nil
}

func (c *memCache) ExistingTokens(_ context.Context, kind domain.Kind, tokens []string) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := map[string]struct{}{}
	for _, token := range tokens {
		if _, ok := c.records[domain.NewAccessionID(kind, token)]; ok {
			existing[token] = struct{}{}
		}
	}
	return existing, nil
}

func (c *memCache) InsertMany(_ context.Context, records []domain.AccessionRecord) error {
	c.inserts.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()

	var dups []domain.AccessionID
	for _, record := range records {
		if _, ok := c.records[record.ID]; ok {
			dups = append(dups, record.ID)
			continue
		}
		c.records[record.ID] = record
	}
	if len(dups) > 0 {
		return &domain.DuplicateAccessionError{IDs: dups}
	}
	return nil
}

func (c *memCache) UpdateMany(_ context.Context, records []domain.AccessionRecord) error {
	c.updates.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range records {
		c.records[record.ID] = record
	}
	return nil
}

func (c *memCache) FindPending(_ context.Context, limit int) ([]domain.AccessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []domain.AccessionID
	for id, record := range c.records {
		if record.Resolution.IsPending() {
			pending = append(pending, id)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].String() < pending[j].String() })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (c *memCache) Stats(context.Context) (ports.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ports.CacheStats{Total: len(c.records)}
	for _, record := range c.records {
		switch record.Resolution.State() {
		case domain.ResolutionResolved:
			stats.Resolved++
		case domain.ResolutionUnidentified:
			stats.Unidentified++
		default:
			stats.Pending++
		}
	}
	return stats, nil
}

func (c *memCache) record(kind domain.Kind, token string) (domain.AccessionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.records[domain.NewAccessionID(kind, token)]
	return record, ok
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

type memTaxa struct {
	nodes map[int]domain.TaxonNode
}

var _ ports.TaxonStore = (*memTaxa)(nil)

// newMemTaxa takes parent links as child -> parent.
func newMemTaxa(parents map[int]int) *memTaxa {
	nodes := map[int]domain.TaxonNode{1: {ID: 1, ParentID: 1, Rank: "no rank", Names: []string{"root"}}}
	for id, parent := range parents {
		nodes[id] = domain.TaxonNode{ID: id, ParentID: parent, Names: []string{fmt.Sprintf("taxon %d", id)}}
	}
	return &memTaxa{nodes: nodes}
}

func (m *memTaxa) Get(_ context.Context, id int) (domain.TaxonNode, error) {
	node, ok := m.nodes[id]
	if !ok {
		return domain.TaxonNode{}, domain.ErrTaxonNotFound
	}
	return node, nil
}

func (m *memTaxa) KnownTaxa(_ context.Context, ids []int) (map[int]struct{}, error) {
	known := map[int]struct{}{}
	for _, id := range ids {
		if _, ok := m.nodes[id]; ok {
			known[id] = struct{}{}
		}
	}
	return known, nil
}

func (m *memTaxa) Ancestries(_ context.Context, ids []int) (map[int][]domain.TaxonNode, error) {
	lineages := map[int][]domain.TaxonNode{}
	for _, id := range ids {
		node, ok := m.nodes[id]
		if !ok {
			continue
		}
		var lineage []domain.TaxonNode
		for {
			if node.ID != domain.RootTaxonID {
				lineage = append(lineage, node)
			}
			if !node.HasParent() {
				break
			}
			node = m.nodes[node.ParentID]
		}
		slices.Reverse(lineage)
		lineages[id] = lineage
	}
	return lineages, nil
}

func (m *memTaxa) ReplaceAll(_ context.Context, nodes iter.Seq2[domain.TaxonNode, error]) (int, error) {
	m.nodes = map[int]domain.TaxonNode{}
	for node, err := range nodes {
		if err != nil {
			return len(m.nodes), err
		}
		m.nodes[node.ID] = node
	}
	return len(m.nodes), nil
}

func (m *memTaxa) Count(context.Context) (int, error) {
	return len(m.nodes), nil
}

// scriptedFetcher answers with the taxa it knows and records every call.
type scriptedFetcher struct {
	mu      sync.Mutex
	apiKey  bool
	taxa    map[string]int
	fail    func(call int, tokens []string) error
	// partial fails a call after its known records have been gathered.
	partial func(call int) error
	calls   [][]string
	maxSeen int
	active  atomic.Int32
	peak    atomic.Int32
}

var _ ports.SummaryFetcher = (*scriptedFetcher)(nil)

func (f *scriptedFetcher) HasAPIKey() bool {
	return f.apiKey
}

func (f *scriptedFetcher) FetchSummaries(_ context.Context, kind domain.Kind, tokens []string) ([]domain.AccessionRecord, error) {
	active := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if active <= peak || f.peak.CompareAndSwap(peak, active) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(tokens))
	call := len(f.calls)
	if len(tokens) > f.maxSeen {
		f.maxSeen = len(tokens)
	}
	fail := f.fail
	partial := f.partial
	f.mu.Unlock()

	if fail != nil {
		if err := fail(call, tokens); err != nil {
			return nil, err
		}
	}

	var records []domain.AccessionRecord
	for _, token := range tokens {
		taxon, ok := f.taxa[token]
		if !ok {
			continue
		}
		records = append(records, domain.AccessionRecord{
			ID:         domain.NewAccessionID(kind, token),
			Resolution: domain.Resolved(taxon),
		}.WithHitDefinition("definition of "+token))
	}
	if partial != nil {
		if err := partial(call); err != nil {
			return records, err
		}
	}
	return records, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingProgress struct {
	mu       sync.Mutex
	steps    []string
	percents []int
}

func (p *recordingProgress) Step(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, label)
}

func (p *recordingProgress) Percent(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percents = append(p.percents, percent)
}

func tokenRange(prefix string, n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("%s%05d", prefix, i)
	}
	return tokens
}
