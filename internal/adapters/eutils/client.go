package eutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL      = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	summaryPath         = "esummary.fcgi"
	maxSummaryBodyBytes = 16 << 20
)

// TaxonIndex tells which taxon ids the local taxonomy knows about.
type TaxonIndex interface {
	KnownTaxa(ctx context.Context, ids []int) (map[int]struct{}, error)
}

type Client struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Limiter        *Limiter
	Taxa           TaxonIndex
	Log            logrus.FieldLogger
}

var _ ports.SummaryFetcher = Client{}

func (c Client) HasAPIKey() bool {
	return c.APIKey != ""
}

// FetchSummaries looks the tokens up in the nucleotide or protein database.
// When the taxonomy merge lookup fails, the records settled so far are
// returned together with the error.
func (c Client) FetchSummaries(ctx context.Context, kind domain.Kind, tokens []string) ([]domain.AccessionRecord, error) {
	if len(tokens) == 0 {
		return nil, domain.ErrEmptyTokenSet
	}

	body, err := c.summary(ctx, kind.Database(), strings.Join(tokens, ","))
	if err != nil {
		return nil, fmt.Errorf("request %s summaries: %w", kind.Database(), err)
	}

	entries, skipped, err := parseSummaries(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s summaries: %w", kind.Database(), err)
	}
	if len(skipped) > 0 {
		c.log().WithField("uids", strings.Join(skipped, ",")).Warn("unreadable summary entries skipped")
	}

	records := make([]domain.AccessionRecord, 0, len(entries))
	unknown := map[int][]domain.AccessionRecord{}
	candidates := make([]int, 0, len(entries))
	for _, entry := range entries {
		if !entry.HasTaxon {
			c.log().WithFields(logrus.Fields{
				"accession": entry.Accession,
				"comment":   entry.Comment,
			}).Warn("no taxid found for accession")
			continue
		}

		record := domain.AccessionRecord{
			ID:         domain.NewAccessionID(kind, domain.StripVersion(entry.Accession)),
			Resolution: domain.ResolutionFromTaxon(entry.TaxonID),
		}
		if entry.Title != "" {
			record = record.WithHitDefinition(entry.Title)
		}

		if record.Resolution.State() != domain.ResolutionResolved {
			records = append(records, record)
			continue
		}
		if _, seen := unknown[entry.TaxonID]; !seen {
			candidates = append(candidates, entry.TaxonID)
		}
		unknown[entry.TaxonID] = append(unknown[entry.TaxonID], record)
	}

	known, err := c.knownTaxa(ctx, candidates)
	if err != nil {
		return records, fmt.Errorf("check known taxa: %w", err)
	}
	for taxon := range known {
		records = append(records, unknown[taxon]...)
		delete(unknown, taxon)
	}
	if len(unknown) == 0 {
		return records, nil
	}

	merged, err := c.resolveMerges(ctx, unknown)
	if err != nil {
		return records, fmt.Errorf("resolve merged taxa: %w", err)
	}
	return append(records, merged...), nil
}

func (c Client) knownTaxa(ctx context.Context, ids []int) (map[int]struct{}, error) {
	if c.Taxa == nil {
		known := make(map[int]struct{}, len(ids))
		for _, id := range ids {
			known[id] = struct{}{}
		}
		return known, nil
	}
	if len(ids) == 0 {
		return map[int]struct{}{}, nil
	}
	return c.Taxa.KnownTaxa(ctx, ids)
}

// resolveMerges asks the taxonomy database which current id replaced each
// unknown taxon. Taxa without a replacement become unidentified.
func (c Client) resolveMerges(ctx context.Context, unknown map[int][]domain.AccessionRecord) ([]domain.AccessionRecord, error) {
	taxa := make([]int, 0, len(unknown))
	ids := make([]string, 0, len(unknown))
	for taxon := range unknown {
		taxa = append(taxa, taxon)
	}
	sort.Ints(taxa)
	for _, taxon := range taxa {
		ids = append(ids, strconv.Itoa(taxon))
	}

	body, err := c.summary(ctx, "taxonomy", strings.Join(ids, ","))
	if err != nil {
		return nil, err
	}
	targets, err := parseMerges(body, taxa)
	if err != nil {
		return nil, err
	}

	var records []domain.AccessionRecord
	for _, taxon := range taxa {
		target, ok := targets[taxon]
		for _, record := range unknown[taxon] {
			if ok {
				record.Resolution = domain.ResolutionFromTaxon(target)
			} else {
				record.Resolution = domain.Unidentified()
			}
			records = append(records, record)
		}
	}

	c.log().WithFields(logrus.Fields{
		"merged":     len(targets),
		"unresolved": len(taxa) - len(targets),
	}).Info("checked unknown taxa for merges")
	return records, nil
}

func (c Client) summary(ctx context.Context, db string, ids string) ([]byte, error) {
	endpoint, err := buildAPIURL(c.baseURL(), summaryPath)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("db", db)
	query.Set("retmode", "json")
	query.Set("id", ids)
	if c.HasAPIKey() {
		query.Set("api_key", c.APIKey)
	}

	spacing := SpacingWithoutKey
	if c.HasAPIKey() {
		spacing = SpacingWithKey
	}
	if err := c.limiter().Acquire(ctx, spacing); err != nil {
		return nil, err
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create summary request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSummaryBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read summary response: %w", err)
	}
	return body, nil
}

func (c Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) limiter() *Limiter {
	if c.Limiter != nil {
		return c.Limiter
	}
	return processLimiter
}

func (c Client) log() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func buildAPIURL(baseURL string, path string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse eutils base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("eutils base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("eutils base url host is required")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse eutils path: %w", err)
	}
	return endpoint.String(), nil
}
