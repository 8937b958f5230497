package application

import (
	"context"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
)

// ParseTokenCells splits assignment cells into nucleotide and protein tokens,
// dropping version suffixes. Unparseable entries are returned separately.
func ParseTokenCells(cells []string) (nucl []string, prot []string, invalid []string) {
	for _, cell := range cells {
		for _, raw := range domain.SplitTokenCell(cell) {
			id, err := domain.ParseAccessionToken(raw)
			if err != nil {
				invalid = append(invalid, raw)
				continue
			}
			if id.Kind == domain.KindProtein {
				prot = append(prot, id.Token)
			} else {
				nucl = append(nucl, id.Token)
			}
		}
	}
	return uniqueTokens(nucl), uniqueTokens(prot), invalid
}

// Prefetch resolves every accession cited by the given cells that the cache
// does not know yet.
func Prefetch(ctx context.Context, resolver *Resolver, cells []string, progress ports.Progress) (ResolveResult, []string, error) {
	nucl, prot, invalid := ParseTokenCells(cells)
	result, err := resolver.Resolve(ctx, ResolveRequest{
		Nucleotide:    nucl,
		Protein:       prot,
		ImportContext: true,
		Progress:      progress,
	})
	return result, invalid, err
}
