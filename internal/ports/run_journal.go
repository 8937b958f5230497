package ports

import (
	"context"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
)

type RunJournal interface {
	Append(ctx context.Context, run domain.RunSummary) error
	Recent(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
