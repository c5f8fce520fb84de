package cluster

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/enrichment"
	"github.com/tidemark-io/tidemark/internal/shared"
)

type memoryRepo struct {
	clusters    map[int64]Cluster
	memberships map[int64]Membership // keyed by entity id
	members     []MemberProduct
	wips        []WIPProduct
	supplier    map[string]map[int64]float64 // week -> product -> qty
	products    map[int64]struct{ archived, wip bool }
	customers   map[int64]bool
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		clusters:    map[int64]Cluster{},
		memberships: map[int64]Membership{},
		supplier:    map[string]map[int64]float64{},
		products:    map[int64]struct{ archived, wip bool }{},
		customers:   map[int64]bool{},
		nextID:      1,
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) CreateCluster(_ context.Context, c Cluster) (Cluster, error) {
	c.ID = m.nextID
	m.nextID++
	m.clusters[c.ID] = c
	return c, nil
}

func (m *memoryRepo) GetCluster(_ context.Context, id int64) (Cluster, error) {
	c, ok := m.clusters[id]
	if !ok {
		return Cluster{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) ListClusters(_ context.Context) ([]Cluster, error) {
	out := make([]Cluster, 0, len(m.clusters))
	for id := int64(1); id < m.nextID; id++ {
		if c, ok := m.clusters[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdateBaseUnitLabel(_ context.Context, clusterID int64, label string) error {
	c, ok := m.clusters[clusterID]
	if !ok {
		return shared.ErrNotFound
	}
	c.BaseUnitLabel = label
	m.clusters[clusterID] = c
	return nil
}

func (m *memoryRepo) UpsertMembership(_ context.Context, mb Membership) error {
	m.memberships[mb.EntityID] = mb
	return nil
}

func (m *memoryRepo) UpdateMultiplier(_ context.Context, entityID int64, value float64) (bool, error) {
	mb, ok := m.memberships[entityID]
	if !ok {
		return false, nil
	}
	mb.UnitMultiplier = value
	m.memberships[entityID] = mb
	return true, nil
}

func (m *memoryRepo) ClusterOf(_ context.Context, entityID int64) (*int64, error) {
	mb, ok := m.memberships[entityID]
	if !ok {
		return nil, nil
	}
	id := mb.ClusterID
	return &id, nil
}

func (m *memoryRepo) ListMemberProducts(_ context.Context, clusterID *int64) ([]MemberProduct, error) {
	var out []MemberProduct
	for _, mp := range m.members {
		if clusterID != nil && mp.ClusterID != *clusterID {
			continue
		}
		out = append(out, mp)
	}
	return out, nil
}

func (m *memoryRepo) ListWIPProducts(_ context.Context) ([]WIPProduct, error) {
	return m.wips, nil
}

func (m *memoryRepo) SupplierQuantities(_ context.Context, weekEnding time.Time) (map[int64]float64, error) {
	week, ok := m.supplier[weekEnding.Format("2006-01-02")]
	if !ok {
		return map[int64]float64{}, nil
	}
	return week, nil
}

func (m *memoryRepo) UpsertStockEntries(_ context.Context, userID string, entries []StockEntry) error {
	for _, e := range entries {
		key := e.WeekEnding.Format("2006-01-02")
		if m.supplier[key] == nil {
			m.supplier[key] = map[int64]float64{}
		}
		m.supplier[key][e.ProductID] += e.QtyOnHand
	}
	return nil
}

func (m *memoryRepo) ProductExists(_ context.Context, id int64) (bool, bool, bool, error) {
	p, ok := m.products[id]
	if !ok {
		return false, false, false, nil
	}
	return true, p.archived, p.wip, nil
}

func (m *memoryRepo) CustomerExists(_ context.Context, id int64) (bool, error) {
	return m.customers[id], nil
}

func (m *memoryRepo) CustomerClusterRefs(_ context.Context) (map[int64]Cluster, error) {
	return nil, nil
}

type staticFacts struct {
	lines []enrichment.Line
}

func (s staticFacts) EnrichedLines(_ context.Context, from, to time.Time) ([]enrichment.Line, error) {
	var out []enrichment.Line
	for _, l := range s.lines {
		if l.InvoiceDate.Before(from) || l.InvoiceDate.After(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func TestAssignMemberValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.clusters[1] = Cluster{ID: 1, Label: "Tray Mix", Type: TypeProduct}
	repo.clusters[2] = Cluster{ID: 2, Label: "North Island", Type: TypeCustomer}
	repo.nextID = 3
	repo.products[10] = struct{ archived, wip bool }{false, false}
	repo.products[11] = struct{ archived, wip bool }{false, true}
	repo.products[12] = struct{ archived, wip bool }{true, false}
	repo.customers[20] = true
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	err := svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 10, UnitMultiplier: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 10, UnitMultiplier: -2})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 11, UnitMultiplier: 1})
	require.ErrorIs(t, err, shared.ErrValidation, "WIP products never join clusters")

	err = svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 12, UnitMultiplier: 1})
	require.ErrorIs(t, err, shared.ErrValidation, "archived products never join clusters")

	err = svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 99, UnitMultiplier: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 10, UnitMultiplier: 2})
	require.NoError(t, err)

	// Same cluster again is an update, not a conflict.
	err = svc.AssignMember(ctx, Membership{ClusterID: 1, EntityID: 10, UnitMultiplier: 3})
	require.NoError(t, err)

	repo.clusters[3] = Cluster{ID: 3, Label: "Other", Type: TypeProduct}
	repo.nextID = 4
	err = svc.AssignMember(ctx, Membership{ClusterID: 3, EntityID: 10, UnitMultiplier: 1})
	require.ErrorIs(t, err, shared.ErrConflict, "a product belongs to at most one cluster")

	err = svc.AssignMember(ctx, Membership{ClusterID: 2, EntityID: 20, UnitMultiplier: 1})
	require.NoError(t, err)
}

func TestSetUnitMultiplierRejectsNonPositive(t *testing.T) {
	repo := newMemoryRepo()
	repo.memberships[10] = Membership{ClusterID: 1, EntityID: 10, UnitMultiplier: 2}
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.SetUnitMultiplier(ctx, 10, 0), shared.ErrValidation)
	require.ErrorIs(t, svc.SetUnitMultiplier(ctx, 10, -1), shared.ErrValidation)
	require.ErrorIs(t, svc.SetUnitMultiplier(ctx, 99, 2), shared.ErrNotFound)

	require.NoError(t, svc.SetUnitMultiplier(ctx, 10, 4))
	require.Equal(t, float64(4), repo.memberships[10].UnitMultiplier)
}

func TestSetBaseUnitLabelOnlyProductClusters(t *testing.T) {
	repo := newMemoryRepo()
	repo.clusters[1] = Cluster{ID: 1, Label: "Tray Mix", Type: TypeProduct}
	repo.clusters[2] = Cluster{ID: 2, Label: "North Island", Type: TypeCustomer}
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	require.NoError(t, svc.SetBaseUnitLabel(ctx, 1, "tray"))
	require.Equal(t, "tray", repo.clusters[1].BaseUnitLabel)
	require.ErrorIs(t, svc.SetBaseUnitLabel(ctx, 2, "tray"), shared.ErrValidation)
	require.ErrorIs(t, svc.SetBaseUnitLabel(ctx, 1, "  "), shared.ErrValidation)
}

func TestClusterStockTotalsBaseUnitMath(t *testing.T) {
	week := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.clusters[1] = Cluster{ID: 1, Label: "Tray Mix", Type: TypeProduct, BaseUnitLabel: "tray"}
	repo.nextID = 2
	// 10 units at x2 plus 5 units at x3 is 35 base units on hand.
	repo.members = []MemberProduct{
		{ClusterID: 1, ProductID: 10, UnitMultiplier: 2, QtyOnHand: 10},
		{ClusterID: 1, ProductID: 11, UnitMultiplier: 3, QtyOnHand: 5},
	}
	repo.wips = []WIPProduct{
		{ClusterID: 1, ProductID: 30, CapacityPerDay: 120},
		{ClusterID: 1, ProductID: 31, CapacityPerDay: 80},
	}
	repo.supplier[week.Format("2006-01-02")] = map[int64]float64{
		10: 4,  // finished, converts at x2 -> 8
		30: 50, // WIP, already in base units
	}
	svc := NewService(repo, nil, testLogger(), nil)

	totals, err := svc.ClusterStockTotals(context.Background(), week)
	require.NoError(t, err)
	require.Len(t, totals, 1)

	got := totals[0]
	require.Equal(t, float64(35), got.OurUnits)
	require.Equal(t, float64(8), got.SupplierFinishedUnits)
	require.Equal(t, float64(50), got.SupplierWIPUnits)
	require.Equal(t, float64(93), got.TotalUnits)
	require.Equal(t, float64(200), got.CapacityPerDay)
}

func TestClusterStockTotalsMissingWeekIsZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.clusters[1] = Cluster{ID: 1, Label: "Tray Mix", Type: TypeProduct}
	repo.nextID = 2
	repo.members = []MemberProduct{{ClusterID: 1, ProductID: 10, UnitMultiplier: 2, QtyOnHand: 10}}
	repo.wips = []WIPProduct{{ClusterID: 1, ProductID: 30, CapacityPerDay: 100}}
	svc := NewService(repo, nil, testLogger(), nil)

	totals, err := svc.ClusterStockTotals(context.Background(), time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	require.Equal(t, float64(0), totals[0].SupplierFinishedUnits)
	require.Equal(t, float64(0), totals[0].SupplierWIPUnits)
	require.Equal(t, float64(20), totals[0].TotalUnits, "our own stock still counts")
	require.Equal(t, float64(100), totals[0].CapacityPerDay)
}

func TestClusterSummariesSalesWindows(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.clusters[1] = Cluster{ID: 1, Label: "Tray Mix", Type: TypeProduct}
	repo.nextID = 2
	repo.members = []MemberProduct{{ClusterID: 1, ProductID: 10, UnitMultiplier: 2, QtyOnHand: 6}}

	line := func(daysAgo int, qty, amount float64) enrichment.Line {
		return enrichment.Line{
			SalesLine: enrichment.SalesLine{
				InvoiceDate: now.AddDate(0, 0, -daysAgo),
				Qty:         qty,
				LineAmount:  amount,
			},
			CanonicalProductID: 10,
		}
	}
	facts := staticFacts{lines: []enrichment.Line{
		line(5, 3, 30),    // inside both windows
		line(45, 4, 40),   // only 90d window
		line(200, 99, 999), // outside both
	}}
	svc := NewService(repo, facts, testLogger(), nil)

	summaries, err := svc.ClusterSummaries(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	got := summaries[0]
	require.Equal(t, 1, got.ProductCount)
	require.Equal(t, float64(12), got.UnitsOnHand)
	require.Equal(t, float64(6), got.UnitsSold30d, "3 units at x2")
	require.Equal(t, float64(14), got.UnitsSold90d, "(3+4) units at x2")
	require.Equal(t, float64(30), got.Revenue30d)
	require.Equal(t, float64(70), got.Revenue90d)
}

func TestArchivedMembersStayOutOfRollups(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.clusters[1] = Cluster{ID: 1, Label: "Tray Mix", Type: TypeProduct}
	repo.nextID = 2
	repo.members = []MemberProduct{
		{ClusterID: 1, ProductID: 10, UnitMultiplier: 2, QtyOnHand: 6},
		{ClusterID: 1, ProductID: 11, UnitMultiplier: 5, QtyOnHand: 100, Archived: true},
	}
	repo.supplier[now.Format("2006-01-02")] = map[int64]float64{
		10: 4,
		11: 40, // archived, must not count
	}
	svc := NewService(repo, staticFacts{}, testLogger(), nil)

	summaries, err := svc.ClusterSummaries(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].ProductCount, "archived member is not counted")
	require.Equal(t, float64(12), summaries[0].UnitsOnHand, "archived stock stays out")

	totals, err := svc.ClusterStockTotals(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	require.Equal(t, float64(12), totals[0].OurUnits)
	require.Equal(t, float64(8), totals[0].SupplierFinishedUnits, "supplier stock for an archived product stays out")
}

func TestSaveStockEntriesValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()
	week := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	err := svc.SaveStockEntries(ctx, "", []StockEntry{{ProductID: 1, WeekEnding: week, QtyOnHand: 1}})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	err = svc.SaveStockEntries(ctx, "supplier-1", nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.SaveStockEntries(ctx, "supplier-1", []StockEntry{{ProductID: 1, WeekEnding: week, QtyOnHand: -1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.SaveStockEntries(ctx, "supplier-1", []StockEntry{{ProductID: 1, WeekEnding: week, QtyOnHand: 7}})
	require.NoError(t, err)
	require.Equal(t, float64(7), repo.supplier[week.Format("2006-01-02")][1])
}

func TestCreateClusterValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, testLogger(), nil)
	ctx := context.Background()

	_, err := svc.CreateCluster(ctx, Cluster{Label: "", Type: TypeProduct})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateCluster(ctx, Cluster{Label: "X", Type: Type("region")})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.CreateCluster(ctx, Cluster{Label: "North Island", Type: TypeCustomer, BaseUnitLabel: "tray"})
	require.NoError(t, err)
	require.Empty(t, created.BaseUnitLabel, "customer clusters carry no base unit")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
