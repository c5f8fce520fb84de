package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tidemark-io/tidemark/internal/enrichment"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// FactSource provides enriched sales lines for a date range. Excluded rows
// never reach cluster figures.
type FactSource interface {
	EnrichedLines(ctx context.Context, from, to time.Time) ([]enrichment.Line, error)
}

// Invalidator bumps the report cache version after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates cluster membership and the aggregate views derived
// from it.
type Service struct {
	repo        Repository
	facts       FactSource
	logger      *slog.Logger
	invalidator Invalidator
}

// NewService constructs the cluster service. facts and invalidator may be nil
// in contexts that only mutate membership.
func NewService(repo Repository, facts FactSource, logger *slog.Logger, invalidator Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, facts: facts, logger: logger, invalidator: invalidator}
}

// CreateCluster validates and persists a new cluster.
func (s *Service) CreateCluster(ctx context.Context, c Cluster) (Cluster, error) {
	c.Label = strings.TrimSpace(c.Label)
	if c.Label == "" {
		return Cluster{}, shared.Validationf("cluster label is required")
	}
	if !c.Type.Valid() {
		return Cluster{}, shared.Validationf("unknown cluster type %q", c.Type)
	}
	if c.Type == TypeCustomer {
		c.BaseUnitLabel = ""
	}
	created, err := s.repo.CreateCluster(ctx, c)
	if err != nil {
		return Cluster{}, err
	}
	s.logger.Info("cluster created", "cluster_id", created.ID, "type", created.Type)
	s.bump(ctx)
	return created, nil
}

// ListClusters returns all clusters.
func (s *Service) ListClusters(ctx context.Context) ([]Cluster, error) {
	return s.repo.ListClusters(ctx)
}

// AssignMember adds an entity to a cluster. Products must be finished goods
// and may belong to at most one cluster.
func (s *Service) AssignMember(ctx context.Context, m Membership) error {
	if m.UnitMultiplier <= 0 {
		return shared.Validationf("unit multiplier must be positive, got %v", m.UnitMultiplier)
	}
	c, err := s.repo.GetCluster(ctx, m.ClusterID)
	if err != nil {
		return err
	}

	switch c.Type {
	case TypeProduct:
		exists, archived, wip, err := s.repo.ProductExists(ctx, m.EntityID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: product %d", shared.ErrNotFound, m.EntityID)
		}
		if archived {
			return shared.Validationf("product %d is archived", m.EntityID)
		}
		if wip {
			return shared.Validationf("product %d is work-in-progress and cannot join a cluster", m.EntityID)
		}
		current, err := s.repo.ClusterOf(ctx, m.EntityID)
		if err != nil {
			return err
		}
		if current != nil && *current != m.ClusterID {
			return fmt.Errorf("%w: product %d already belongs to cluster %d", shared.ErrConflict, m.EntityID, *current)
		}
	case TypeCustomer:
		exists, err := s.repo.CustomerExists(ctx, m.EntityID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: customer %d", shared.ErrNotFound, m.EntityID)
		}
	}

	if err := s.repo.UpsertMembership(ctx, m); err != nil {
		return err
	}
	s.logger.Info("cluster member assigned",
		"cluster_id", m.ClusterID, "entity_id", m.EntityID, "unit_multiplier", m.UnitMultiplier)
	s.bump(ctx)
	return nil
}

// SetUnitMultiplier changes the conversion factor for an existing membership.
func (s *Service) SetUnitMultiplier(ctx context.Context, entityID int64, value float64) error {
	if value <= 0 {
		return shared.Validationf("unit multiplier must be positive, got %v", value)
	}
	found, err := s.repo.UpdateMultiplier(ctx, entityID, value)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no membership for entity %d", shared.ErrNotFound, entityID)
	}
	s.bump(ctx)
	return nil
}

// SetBaseUnitLabel names the unit everything in a product cluster converts to.
func (s *Service) SetBaseUnitLabel(ctx context.Context, clusterID int64, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return shared.Validationf("base unit label is required")
	}
	c, err := s.repo.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	if c.Type != TypeProduct {
		return shared.Validationf("cluster %d is not a product cluster", clusterID)
	}
	if err := s.repo.UpdateBaseUnitLabel(ctx, clusterID, label); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// SaveStockEntries records one supplier's weekly counts. Entries for products
// the supplier already reported that week are overwritten.
func (s *Service) SaveStockEntries(ctx context.Context, userID string, entries []StockEntry) error {
	if userID == "" {
		return shared.ErrUnauthorized
	}
	if len(entries) == 0 {
		return shared.Validationf("no stock entries supplied")
	}
	for i, e := range entries {
		if e.ProductID <= 0 {
			return shared.Validationf("entry %d: product id is required", i)
		}
		if e.QtyOnHand < 0 {
			return shared.Validationf("entry %d: quantity cannot be negative", i)
		}
		if e.WeekEnding.IsZero() {
			return shared.Validationf("entry %d: week ending is required", i)
		}
	}
	if err := s.repo.UpsertStockEntries(ctx, userID, entries); err != nil {
		return err
	}
	s.logger.Info("supplier stock saved", "user_id", userID, "entries", len(entries))
	s.bump(ctx)
	return nil
}

// ClusterSummaries returns the sales and inventory rollup for every cluster.
// Sales windows are measured back from now.
func (s *Service) ClusterSummaries(ctx context.Context, now time.Time) ([]Summary, error) {
	clusters, err := s.repo.ListClusters(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMemberProducts(ctx, nil)
	if err != nil {
		return nil, err
	}

	byCluster := map[int64]*Summary{}
	order := make([]int64, 0, len(clusters))
	productCluster := map[int64]Membership{}
	for _, c := range clusters {
		byCluster[c.ID] = &Summary{Cluster: c}
		order = append(order, c.ID)
	}
	for _, m := range members {
		sum, ok := byCluster[m.ClusterID]
		if !ok {
			continue
		}
		if m.Archived {
			// Enrichment already drops an archived product's sales; its
			// stock stays out of the rollup too.
			continue
		}
		sum.ProductCount++
		sum.UnitsOnHand += m.QtyOnHand * m.UnitMultiplier
		productCluster[m.ProductID] = Membership{ClusterID: m.ClusterID, EntityID: m.ProductID, UnitMultiplier: m.UnitMultiplier}
	}

	if s.facts != nil {
		lines, err := s.facts.EnrichedLines(ctx, now.AddDate(0, 0, -90), now)
		if err != nil {
			return nil, err
		}
		cut30 := now.AddDate(0, 0, -30)
		for _, line := range lines {
			m, ok := productCluster[line.CanonicalProductID]
			if !ok {
				continue
			}
			sum := byCluster[m.ClusterID]
			units := line.Qty * m.UnitMultiplier
			sum.UnitsSold90d += units
			sum.Revenue90d += line.LineAmount
			if !line.InvoiceDate.Before(cut30) {
				sum.UnitsSold30d += units
				sum.Revenue30d += line.LineAmount
			}
		}
	}

	out := make([]Summary, 0, len(order))
	for _, id := range order {
		out = append(out, *byCluster[id])
	}
	return out, nil
}

// ClusterProductDetails lists the members of one cluster with their base unit
// contribution.
func (s *Service) ClusterProductDetails(ctx context.Context, clusterID int64) (Cluster, []ProductDetail, error) {
	c, err := s.repo.GetCluster(ctx, clusterID)
	if err != nil {
		return Cluster{}, nil, err
	}
	members, err := s.repo.ListMemberProducts(ctx, &clusterID)
	if err != nil {
		return Cluster{}, nil, err
	}
	details := make([]ProductDetail, 0, len(members))
	for _, m := range members {
		details = append(details, ProductDetail{
			ProductID:      m.ProductID,
			ProductCode:    m.ProductCode,
			ProductName:    m.ProductName,
			UnitMultiplier: m.UnitMultiplier,
			QtyOnHand:      m.QtyOnHand,
			BaseUnits:      m.QtyOnHand * m.UnitMultiplier,
		})
	}
	return c, details, nil
}

// ClusterStockTotals computes the production planning view for every product
// cluster as of one supplier reporting week.
//
// Finished members contribute our own stock and supplier stock converted by
// their multiplier. WIP products contribute supplier stock as-is, since those
// counts are already in base units. A supplier with no report that week
// contributes zero.
func (s *Service) ClusterStockTotals(ctx context.Context, weekEnding time.Time) ([]StockTotals, error) {
	clusters, err := s.repo.ListClusters(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMemberProducts(ctx, nil)
	if err != nil {
		return nil, err
	}
	wips, err := s.repo.ListWIPProducts(ctx)
	if err != nil {
		return nil, err
	}
	supplier, err := s.repo.SupplierQuantities(ctx, weekEnding)
	if err != nil {
		return nil, err
	}

	byCluster := map[int64]*StockTotals{}
	for _, c := range clusters {
		if c.Type != TypeProduct {
			continue
		}
		byCluster[c.ID] = &StockTotals{Cluster: c}
	}
	for _, m := range members {
		t, ok := byCluster[m.ClusterID]
		if !ok || m.Archived {
			continue
		}
		t.OurUnits += m.QtyOnHand * m.UnitMultiplier
		t.SupplierFinishedUnits += supplier[m.ProductID] * m.UnitMultiplier
	}
	for _, wp := range wips {
		t, ok := byCluster[wp.ClusterID]
		if !ok {
			continue
		}
		t.SupplierWIPUnits += supplier[wp.ProductID]
		t.CapacityPerDay += wp.CapacityPerDay
	}

	out := make([]StockTotals, 0, len(byCluster))
	for _, t := range byCluster {
		t.TotalUnits = t.OurUnits + t.SupplierFinishedUnits + t.SupplierWIPUnits
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster.Label < out[j].Cluster.Label })
	return out, nil
}

// CustomerClusterRefs exposes the customer-to-cluster mapping for the
// enrichment dimension snapshot.
func (s *Service) CustomerClusterRefs(ctx context.Context) (map[int64]Cluster, error) {
	return s.repo.CustomerClusterRefs(ctx)
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", "error", err)
	}
}
