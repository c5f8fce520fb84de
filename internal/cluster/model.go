package cluster

import "time"

// Type discriminates customer clusters from product clusters.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeProduct  Type = "product"
)

// Valid reports whether the cluster type is known.
func (t Type) Valid() bool {
	return t == TypeCustomer || t == TypeProduct
}

// Cluster is a named grouping for reporting and production planning.
// BaseUnitLabel is only meaningful for product clusters.
type Cluster struct {
	ID            int64  `json:"id"`
	Label         string `json:"label"`
	Type          Type   `json:"type"`
	BaseUnitLabel string `json:"base_unit_label,omitempty"`
}

// Membership links an entity to a cluster with its unit conversion factor
// into the cluster's base unit. Always positive.
type Membership struct {
	ClusterID      int64   `json:"cluster_id"`
	EntityID       int64   `json:"entity_id"`
	UnitMultiplier float64 `json:"unit_multiplier"`
}

// MemberProduct is a membership joined with its product attributes.
type MemberProduct struct {
	ClusterID      int64
	ProductID      int64
	ProductCode    string
	ProductName    string
	UnitMultiplier float64
	QtyOnHand      float64
	Archived       bool
}

// WIPProduct is a work-in-progress product linked to a product cluster.
// Supplier quantities for it are already in cluster base units.
type WIPProduct struct {
	ClusterID      int64
	ProductID      int64
	ProductName    string
	CapacityPerDay float64
}

// StockEntry is one supplier-reported quantity for a product and week.
type StockEntry struct {
	ProductID  int64     `json:"product_id"`
	WeekEnding time.Time `json:"week_ending"`
	QtyOnHand  float64   `json:"qty_on_hand"`
}

// Summary is the per-cluster sales and inventory rollup.
type Summary struct {
	Cluster      Cluster `json:"cluster"`
	ProductCount int     `json:"product_count"`
	UnitsOnHand  float64 `json:"units_on_hand"`
	UnitsSold30d float64 `json:"units_sold_30d"`
	UnitsSold90d float64 `json:"units_sold_90d"`
	Revenue30d   float64 `json:"revenue_30d"`
	Revenue90d   float64 `json:"revenue_90d"`
}

// StockTotals is the per-cluster production planning view, everything in the
// cluster's base unit.
type StockTotals struct {
	Cluster               Cluster `json:"cluster"`
	OurUnits              float64 `json:"our_units"`
	SupplierFinishedUnits float64 `json:"supplier_finished_units"`
	SupplierWIPUnits      float64 `json:"supplier_wip_units"`
	TotalUnits            float64 `json:"total_units"`
	CapacityPerDay        float64 `json:"production_capacity_per_day"`
}

// ProductDetail is one member row of a cluster detail view.
type ProductDetail struct {
	ProductID      int64   `json:"product_id"`
	ProductCode    string  `json:"product_code"`
	ProductName    string  `json:"product_name"`
	UnitMultiplier float64 `json:"unit_multiplier"`
	QtyOnHand      float64 `json:"qty_on_hand"`
	BaseUnits      float64 `json:"base_units"`
}
