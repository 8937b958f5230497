package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

type Enricher struct {
	cache     ports.AccessionCache
	consensus *ConsensusEngine
	log       logrus.FieldLogger
}

func NewEnricher(cache ports.AccessionCache, consensus *ConsensusEngine, log logrus.FieldLogger) *Enricher {
	if log == nil {
		log = discardLogger()
	}
	return &Enricher{cache: cache, consensus: consensus, log: log}
}

// Enrich attaches the accessions, their hit definitions and a taxon to the
// assignment. It returns the accessions the cache knows nothing about; fetching
// them is left to the caller.
func (e *Enricher) Enrich(ctx context.Context, tokens []string, assignment *domain.Assignment) ([]domain.AccessionID, error) {
	raw := make([]string, 0, len(tokens))
	ids := make([]domain.AccessionID, 0, len(tokens))
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		id, err := domain.ParseAccessionToken(token)
		if errors.Is(err, domain.ErrInvalidAccession) {
			e.log.WithField("token", token).Debug("skipping empty accession")
			continue
		}
		if err != nil {
			return nil, err
		}
		raw = append(raw, token)
		ids = append(ids, id)
	}

	records, err := e.cache.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("look up cached accessions: %w", err)
	}

	hitDefs := make([]*string, len(ids))
	weights := make(map[int]int)
	var notFound []domain.AccessionID
	foundDefinition := false
	for i, id := range ids {
		record, ok := records[id]
		if !ok {
			notFound = append(notFound, id)
			continue
		}
		if record.HasHitDefinition {
			def := record.HitDefinition
			hitDefs[i] = &def
			foundDefinition = true
		}
		if taxon, ok := record.Resolution.TaxonID(); ok {
			weights[taxon]++
		}
	}

	assignment.Accessions = raw
	if foundDefinition {
		assignment.HitDefinitions = hitDefs
	}

	switch len(weights) {
	case 0:
		return notFound, nil
	case 1:
		for taxon := range weights {
			assignment.SetTaxon(taxon)
		}
		return notFound, nil
	}

	taxon, ok, err := e.consensus.Resolve(ctx, weights)
	if err != nil {
		return nil, err
	}
	if ok && taxon > 0 {
		assignment.SetTaxon(taxon)
	} else {
		e.log.WithField("accessions", strings.Join(raw, ",")).Debug("no consensus taxon for assignment")
	}

	return notFound, nil
}
