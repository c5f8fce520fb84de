package ingest

import (
	"context"
	"log/slog"

	"github.com/tidemark-io/tidemark/internal/shared"
)

// Invalidator bumps the report cache version after a load.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service applies collaborator loads. Reports read whatever the warehouse
// holds, so every load bumps the cache version on completion.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	invalidator Invalidator
}

// NewService constructs the ingest service.
func NewService(repo Repository, logger *slog.Logger, invalidator Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, invalidator: invalidator}
}

// LoadCustomers upserts customer dimension rows.
func (s *Service) LoadCustomers(ctx context.Context, rows []CustomerUpsert) error {
	if len(rows) == 0 {
		return shared.Validationf("no customer rows supplied")
	}
	if err := s.repo.UpsertCustomers(ctx, rows); err != nil {
		return err
	}
	s.logger.Info("customers loaded", "rows", len(rows))
	s.bump(ctx)
	return nil
}

// LoadProducts upserts product dimension rows.
func (s *Service) LoadProducts(ctx context.Context, rows []ProductUpsert) error {
	if len(rows) == 0 {
		return shared.Validationf("no product rows supplied")
	}
	for _, row := range rows {
		if row.WIPForClusterID != nil && row.ProductType != "wip" {
			return shared.Validationf("product %d: wip_for_cluster_id requires product_type wip", row.ID)
		}
		if row.ProductType == "wip" && row.WIPForClusterID == nil {
			return shared.Validationf("product %d: product_type wip requires wip_for_cluster_id", row.ID)
		}
	}
	if err := s.repo.UpsertProducts(ctx, rows); err != nil {
		return err
	}
	s.logger.Info("products loaded", "rows", len(rows))
	s.bump(ctx)
	return nil
}

// LoadSalesLines appends fact rows.
func (s *Service) LoadSalesLines(ctx context.Context, rows []SalesLineRow) (int, error) {
	if len(rows) == 0 {
		return 0, shared.Validationf("no sales lines supplied")
	}
	inserted, err := s.repo.AppendSalesLines(ctx, rows)
	if err != nil {
		return 0, err
	}
	s.logger.Info("sales lines loaded", "rows", inserted)
	s.bump(ctx)
	return inserted, nil
}

// LoadInvoices upserts receivable headers.
func (s *Service) LoadInvoices(ctx context.Context, rows []InvoiceRow) error {
	if len(rows) == 0 {
		return shared.Validationf("no invoice rows supplied")
	}
	if err := s.repo.UpsertInvoices(ctx, rows); err != nil {
		return err
	}
	s.logger.Info("invoices loaded", "rows", len(rows))
	s.bump(ctx)
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", "error", err)
	}
}
