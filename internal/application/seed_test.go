package application

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecords(records []domain.AccessionRecord, tail error) iter.Seq2[domain.AccessionRecord, error] {
	return func(yield func(domain.AccessionRecord, error) bool) {
		for _, record := range records {
			if !yield(record, nil) {
				return
			}
		}
		if tail != nil {
			yield(domain.AccessionRecord{}, tail)
		}
	}
}

func TestSeedInsertsUpdatesAndSkipsUnchanged(t *testing.T) {
	cache := newMemCache(nuclRecord("SAME", 562, "kept"), nuclRecord("MOVED", 562, "old definition"))
	service := NewSeedService(cache, nil)

	report, err := service.Seed(context.Background(), seedRecords([]domain.AccessionRecord{
		nuclRecord("SAME", 562, ""),
		nuclRecord("MOVED", 564, ""),
		nuclRecord("NEW", 1386, ""),
	}, nil), nil)
	require.NoError(t, err)

	assert.Equal(t, SeedReport{Inserted: 1, Updated: 1, Unchanged: 1}, report)

	moved, _ := cache.record(domain.KindNucleotide, "MOVED")
	assert.Equal(t, domain.Resolved(564), moved.Resolution)
	assert.Equal(t, "old definition", moved.HitDefinition)
	_, ok := cache.record(domain.KindNucleotide, "NEW")
	assert.True(t, ok)
}

func TestSeedWritesInBatches(t *testing.T) {
	var records []domain.AccessionRecord
	for _, token := range tokenRange("S", 2500) {
		records = append(records, nuclRecord(token, 562, ""))
	}
	cache := newMemCache()

	report, err := NewSeedService(cache, nil).Seed(context.Background(), seedRecords(records, nil), nil)
	require.NoError(t, err)

	assert.Equal(t, 2500, report.Inserted)
	assert.Equal(t, int32(3), cache.inserts.Load())
}

func TestSeedStopsOnReadError(t *testing.T) {
	readErr := errors.New("corrupt gzip stream")

	_, err := NewSeedService(newMemCache(), nil).Seed(context.Background(), seedRecords(nil, readErr), nil)
	require.ErrorIs(t, err, readErr)
}

func TestTaxonomyImporterReplacesStore(t *testing.T) {
	taxa := newMemTaxa(map[int]int{2: 1})
	nodes := func(yield func(domain.TaxonNode, error) bool) {
		for _, node := range []domain.TaxonNode{{ID: 1, ParentID: 1}, {ID: 2759, ParentID: 1}} {
			if !yield(node, nil) {
				return
			}
		}
	}

	count, err := NewTaxonomyImporter(taxa, nil).Import(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = taxa.Get(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrTaxonNotFound)
}
