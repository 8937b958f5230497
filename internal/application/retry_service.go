package application

import (
	"context"
	"fmt"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
)

type RetryService struct {
	cache    ports.AccessionCache
	resolver *Resolver
}

func NewRetryService(cache ports.AccessionCache, resolver *Resolver) *RetryService {
	return &RetryService{cache: cache, resolver: resolver}
}

// RetryPending fetches again the accessions whose earlier lookups never
// reached the service. A limit of zero or less retries all of them.
func (s *RetryService) RetryPending(ctx context.Context, limit int, progress ports.Progress) (ResolveResult, error) {
	pending, err := s.cache.FindPending(ctx, limit)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("find pending accessions: %w", err)
	}

	req := ResolveRequest{Progress: progress}
	for _, id := range pending {
		switch id.Kind {
		case domain.KindProtein:
			req.Protein = append(req.Protein, id.Token)
		default:
			req.Nucleotide = append(req.Nucleotide, id.Token)
		}
	}

	return s.resolver.Resolve(ctx, req)
}
