package ports

import (
	"context"
	"iter"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
)

type TaxonStore interface {
	Get(ctx context.Context, id int) (domain.TaxonNode, error)
	KnownTaxa(ctx context.Context, ids []int) (map[int]struct{}, error)
	// Ancestries returns, per known id, its lineage ordered from the root-most
	// ancestor to the taxon itself, without the root node.
	Ancestries(ctx context.Context, ids []int) (map[int][]domain.TaxonNode, error)
	ReplaceAll(ctx context.Context, nodes iter.Seq2[domain.TaxonNode, error]) (int, error)
	Count(ctx context.Context) (int, error)
}
