package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
)

const APIKeyCredential = "txr/ncbi/api_key"

type Status struct {
	Cache      ports.CacheStats
	TaxonCount int
	Runs       []domain.RunSummary
}

type Service struct {
	cache       ports.AccessionCache
	taxa        ports.TaxonStore
	journal     ports.RunJournal
	credentials ports.CredentialStore
	clock       ports.Clock
}

func NewService(cache ports.AccessionCache, taxa ports.TaxonStore, journal ports.RunJournal, credentials ports.CredentialStore, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		cache:       cache,
		taxa:        taxa,
		journal:     journal,
		credentials: credentials,
		clock:       clock,
	}
}

func (s *Service) SetAPIKey(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("api key is empty")
	}

	if err := s.credentials.Put(ctx, APIKeyCredential, value); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

func (s *Service) ClearAPIKey(ctx context.Context) error {
	if err := s.credentials.Delete(ctx, APIKeyCredential); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// APIKey returns the stored key. A missing key is not an error.
func (s *Service) APIKey(ctx context.Context) (string, bool, error) {
	value, err := s.credentials.Get(ctx, APIKeyCredential)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load api key: %w", err)
	}

	value = strings.TrimSpace(value)
	return value, value != "", nil
}

func (s *Service) Accession(ctx context.Context, raw string) (domain.AccessionRecord, error) {
	id, err := domain.ParseAccessionToken(raw)
	if err != nil {
		return domain.AccessionRecord{}, err
	}
	return s.cache.Get(ctx, id)
}

func (s *Service) Lineage(ctx context.Context, taxonID int) ([]domain.TaxonNode, error) {
	lineages, err := s.taxa.Ancestries(ctx, []int{taxonID})
	if err != nil {
		return nil, fmt.Errorf("load lineage of taxon %d: %w", taxonID, err)
	}

	nodes, ok := lineages[taxonID]
	if !ok {
		return nil, fmt.Errorf("taxon %d: %w", taxonID, domain.ErrTaxonNotFound)
	}
	return nodes, nil
}

func (s *Service) RecordRun(ctx context.Context, run domain.RunSummary) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.clock.Now()
	}
	if err := s.journal.Append(ctx, run); err != nil {
		return fmt.Errorf("record resolve run: %w", err)
	}
	return nil
}

func (s *Service) Status(ctx context.Context, recentRuns int) (Status, error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load cache stats: %w", err)
	}

	taxa, err := s.taxa.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count taxa: %w", err)
	}

	runs, err := s.journal.Recent(ctx, recentRuns)
	if err != nil {
		return Status{}, fmt.Errorf("load recent runs: %w", err)
	}

	return Status{Cache: stats, TaxonCount: taxa, Runs: runs}, nil
}
