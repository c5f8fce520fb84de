package sales

import (
	"context"
	"time"

	"github.com/tidemark-io/tidemark/internal/enrichment"
)

// ExclusionObserver records how many rows an enrichment pass dropped and why.
type ExclusionObserver interface {
	RowExcluded(reason string, n int)
}

// Provider turns raw facts into enriched lines. It is the fact source for
// every report in this package and for cluster rollups.
type Provider struct {
	repo     Repository
	observer ExclusionObserver
}

// NewProvider constructs a provider. observer may be nil.
func NewProvider(repo Repository, observer ExclusionObserver) *Provider {
	return &Provider{repo: repo, observer: observer}
}

// EnrichedLines loads and enriches facts for the range.
func (p *Provider) EnrichedLines(ctx context.Context, from, to time.Time) ([]enrichment.Line, error) {
	res, err := p.Enriched(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return res.Lines, nil
}

// Enriched is EnrichedLines plus the per-reason exclusion counts.
func (p *Provider) Enriched(ctx context.Context, from, to time.Time) (enrichment.Result, error) {
	facts, dims, err := p.repo.Load(ctx, from, to)
	if err != nil {
		return enrichment.Result{}, err
	}
	res, err := enrichment.Enrich(facts, dims)
	if err != nil {
		return enrichment.Result{}, err
	}
	if p.observer != nil {
		for reason, n := range res.Excluded {
			p.observer.RowExcluded(reason, n)
		}
	}
	return res, nil
}
