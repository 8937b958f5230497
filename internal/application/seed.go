package application

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

const SeedBatchSize = 1000

type SeedReport struct {
	Inserted  int
	Updated   int
	Unchanged int
}

type SeedService struct {
	cache ports.AccessionCache
	log   logrus.FieldLogger
}

func NewSeedService(cache ports.AccessionCache, log logrus.FieldLogger) *SeedService {
	if log == nil {
		log = discardLogger()
	}
	return &SeedService{cache: cache, log: log}
}

// Seed loads accession to taxon mappings from a reference set. Accessions
// already cached with the same taxon are left alone.
func (s *SeedService) Seed(ctx context.Context, records iter.Seq2[domain.AccessionRecord, error], progress ports.Progress) (SeedReport, error) {
	if progress == nil {
		progress = ports.NopProgress{}
	}

	var report SeedReport
	batch := make([]domain.AccessionRecord, 0, SeedBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.seedBatch(ctx, batch, &report); err != nil {
			return err
		}
		batch = batch[:0]
		progress.Step(fmt.Sprintf("%d accessions seeded", report.Inserted+report.Updated+report.Unchanged))
		return nil
	}

	for record, err := range records {
		if err != nil {
			return report, fmt.Errorf("read seed records: %w", err)
		}
		batch = append(batch, record)
		if len(batch) == SeedBatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	s.log.WithFields(logrus.Fields{
		"inserted":  report.Inserted,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
	}).Info("accession seeding complete")
	return report, nil
}

func (s *SeedService) seedBatch(ctx context.Context, batch []domain.AccessionRecord, report *SeedReport) error {
	ids := make([]domain.AccessionID, 0, len(batch))
	for _, record := range batch {
		ids = append(ids, record.ID)
	}

	existing, err := s.cache.GetMany(ctx, ids)
	if err != nil {
		return fmt.Errorf("look up seeded accessions: %w", err)
	}

	var inserts, updates []domain.AccessionRecord
	for _, record := range batch {
		current, ok := existing[record.ID]
		switch {
		case !ok:
			inserts = append(inserts, record)
		case current.Resolution != record.Resolution:
			if current.HasHitDefinition && !record.HasHitDefinition {
				record.HitDefinition = current.HitDefinition
				record.HasHitDefinition = true
			}
			updates = append(updates, record)
		default:
			report.Unchanged++
		}
	}

	if len(inserts) > 0 {
		err := s.cache.InsertMany(ctx, inserts)
		var dupErr *domain.DuplicateAccessionError
		switch {
		case errors.As(err, &dupErr):
			updates = append(updates, recordsWithIDs(inserts, dupErr.IDs)...)
			report.Inserted += len(inserts) - len(dupErr.IDs)
		case err != nil:
			return fmt.Errorf("insert seeded accessions: %w", err)
		default:
			report.Inserted += len(inserts)
		}
	}

	if len(updates) > 0 {
		if err := s.cache.UpdateMany(ctx, updates); err != nil {
			return fmt.Errorf("update seeded accessions: %w", err)
		}
		report.Updated += len(updates)
	}
	return nil
}
