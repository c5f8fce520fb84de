package sales

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tidemark-io/tidemark/internal/enrichment"
	"github.com/tidemark-io/tidemark/internal/shared"
)

const yoyYears = 4

// Service computes sales reports from enriched fact lines, with a versioned
// cache in front of every read.
type Service struct {
	provider *Provider
	cache    *Cache
	logger   *slog.Logger
}

// NewService constructs the sales report service. cache may be nil, which
// disables caching entirely.
func NewService(provider *Provider, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, cache: cache, logger: logger}
}

// Overview returns the headline revenue and unit figures for a range.
func (s *Service) Overview(ctx context.Context, from, to time.Time, f Filters) (Overview, error) {
	if err := validateRange(from, to); err != nil {
		return Overview{}, err
	}
	key, err := s.cache.BuildKey(ctx, keyOverview(dateToken(from), dateToken(to), f))
	if err != nil {
		return Overview{}, err
	}
	var out Overview
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		res, err := s.provider.Enriched(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return buildOverview(from, to, res, f), nil
	})
	return out, err
}

// Breakdown groups the range by one canonical dimension, ordered by revenue
// descending and capped at limit rows.
func (s *Service) Breakdown(ctx context.Context, dim string, from, to time.Time, f Filters, limit int) ([]BreakdownRow, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	switch dim {
	case ByMarket, ByMerchantGroup, ByProductGroup, ByCluster, ByCustomer, ByProduct:
	default:
		return nil, shared.Validationf("unknown breakdown dimension %q", dim)
	}
	if limit <= 0 {
		limit = 20
	}
	key, err := s.cache.BuildKey(ctx, keyBreakdown(dim, dateToken(from), dateToken(to), f, limit))
	if err != nil {
		return nil, err
	}
	var out []BreakdownRow
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		lines, err := s.provider.EnrichedLines(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return buildBreakdown(dim, applyFilters(lines, f), limit), nil
	})
	return out, err
}

// YoYComparison returns monthly revenue for the year containing now and the
// three years before it. The four year loads run in parallel, each inside
// its own snapshot transaction.
func (s *Service) YoYComparison(ctx context.Context, now time.Time, f Filters) (YoYComparison, error) {
	currentYear := now.Year()
	key, err := s.cache.BuildKey(ctx, keyYoY(currentYear, f))
	if err != nil {
		return YoYComparison{}, err
	}
	var out YoYComparison
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		series := make([]YoYSeries, yoyYears)
		g, ctx := errgroup.WithContext(ctx)
		for i := 0; i < yoyYears; i++ {
			i := i
			year := currentYear - i
			g.Go(func() error {
				from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
				to := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
				lines, err := s.provider.EnrichedLines(ctx, from, to)
				if err != nil {
					return err
				}
				series[i] = buildYearSeries(year, applyFilters(lines, f))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return YoYComparison{Years: series}, nil
	})
	return out, err
}

func buildOverview(from, to time.Time, res enrichment.Result, f Filters) Overview {
	out := Overview{From: from, To: to, Excluded: res.Excluded}
	invoices := map[string]struct{}{}
	for _, line := range applyFilters(res.Lines, f) {
		out.Revenue += line.LineAmount
		out.Units += line.Qty
		out.LineCount++
		if line.InvoiceNumber != "" {
			invoices[line.InvoiceNumber] = struct{}{}
		}
	}
	out.InvoiceCount = len(invoices)
	return out
}

func buildBreakdown(dim string, lines []enrichment.Line, limit int) []BreakdownRow {
	buckets := map[string]*BreakdownRow{}
	var total float64
	for _, line := range lines {
		key := bucketKey(dim, line)
		row, ok := buckets[key]
		if !ok {
			row = &BreakdownRow{Key: key}
			buckets[key] = row
		}
		row.Revenue += line.LineAmount
		row.Units += line.Qty
		total += line.LineAmount
	}

	out := make([]BreakdownRow, 0, len(buckets))
	for _, row := range buckets {
		if total != 0 {
			row.Share = row.Revenue / total
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func buildYearSeries(year int, lines []enrichment.Line) YoYSeries {
	series := YoYSeries{Year: year}
	for _, line := range lines {
		series.Months[int(line.InvoiceDate.Month())-1] += line.LineAmount
		series.Revenue += line.LineAmount
		series.Units += line.Qty
	}
	return series
}

func bucketKey(dim string, line enrichment.Line) string {
	switch dim {
	case ByMarket:
		return line.Market
	case ByMerchantGroup:
		return line.MerchantGroup
	case ByProductGroup:
		return line.ProductGroup
	case ByCluster:
		if line.ClusterID == nil {
			return enrichment.UnknownLabel
		}
		return line.ClusterLabel
	case ByCustomer:
		return line.CustomerName
	case ByProduct:
		return line.ProductName
	}
	return enrichment.UnknownLabel
}

func applyFilters(lines []enrichment.Line, f Filters) []enrichment.Line {
	if f == (Filters{}) {
		return lines
	}
	out := make([]enrichment.Line, 0, len(lines))
	for _, line := range lines {
		if f.Market != "" && line.Market != f.Market {
			continue
		}
		if f.MerchantGroup != "" && line.MerchantGroup != f.MerchantGroup {
			continue
		}
		if f.ProductGroup != "" && line.ProductGroup != f.ProductGroup {
			continue
		}
		if f.ClusterID != nil && (line.ClusterID == nil || *line.ClusterID != *f.ClusterID) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func validateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return shared.Validationf("date range is required")
	}
	if to.Before(from) {
		return shared.Validationf("range end %s precedes start %s", dateToken(to), dateToken(from))
	}
	return nil
}

func dateToken(t time.Time) string {
	return t.Format("2006-01-02")
}
