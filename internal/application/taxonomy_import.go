package application

import (
	"context"
	"fmt"
	"iter"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

type TaxonomyImporter struct {
	taxa ports.TaxonStore
	log  logrus.FieldLogger
}

func NewTaxonomyImporter(taxa ports.TaxonStore, log logrus.FieldLogger) *TaxonomyImporter {
	if log == nil {
		log = discardLogger()
	}
	return &TaxonomyImporter{taxa: taxa, log: log}
}

// Import replaces the taxon store content with the given nodes.
func (i *TaxonomyImporter) Import(ctx context.Context, nodes iter.Seq2[domain.TaxonNode, error]) (int, error) {
	count, err := i.taxa.ReplaceAll(ctx, nodes)
	if err != nil {
		return count, fmt.Errorf("import taxonomy: %w", err)
	}

	i.log.WithField("taxa", count).Info("taxonomy imported")
	return count, nil
}
