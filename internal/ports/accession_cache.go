package ports

import (
	"context"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
)

type CacheStats struct {
	Total        int
	Resolved     int
	Unidentified int
	Pending      int
}

// AccessionCache is shared by every concurrent resolver. InsertMany writes
// every new record and reports the ones that already existed as a
// *domain.DuplicateAccessionError.
type AccessionCache interface {
	Get(ctx context.Context, id domain.AccessionID) (domain.AccessionRecord, error)
	GetMany(ctx context.Context, ids []domain.AccessionID) (map[domain.AccessionID]domain.AccessionRecord, error)
	ExistingTokens(ctx context.Context, kind domain.Kind, tokens []string) (map[string]struct{}, error)
	InsertMany(ctx context.Context, records []domain.AccessionRecord) error
	UpdateMany(ctx context.Context, records []domain.AccessionRecord) error
	FindPending(ctx context.Context, limit int) ([]domain.AccessionID, error)
	Stats(ctx context.Context) (CacheStats, error)
}
