package ports

import (
	"context"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
)

// SummaryFetcher looks accessions up on the remote summary service. Tokens
// missing from the returned records do not exist remotely.
type SummaryFetcher interface {
	FetchSummaries(ctx context.Context, kind domain.Kind, tokens []string) ([]domain.AccessionRecord, error)
	HasAPIKey() bool
}
