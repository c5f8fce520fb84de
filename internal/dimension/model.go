package dimension

import "time"

// Kind discriminates the two dimension families.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindProduct  Kind = "product"
)

// Valid reports whether the kind is one of the known dimension families.
func (k Kind) Valid() bool {
	return k == KindCustomer || k == KindProduct
}

// ProductType classifies a product row. The zero value means the type was
// never set, which reporting treats the same as finished goods.
type ProductType string

const (
	ProductFinished ProductType = "finished"
	ProductWIP      ProductType = "wip"
)

// Customer is a customer dimension row. MasterID points at the customer this
// row was merged into; nil marks a root.
type Customer struct {
	ID            int64
	Name          string
	MasterID      *int64
	Archived      bool
	Market        string
	MerchantGroup string
	BillTo        string
	UpdatedAt     time.Time
}

// Product is a product dimension row. A WIP product always carries a cluster
// link and never the other way round; the ingest load and a schema CHECK
// enforce the pairing on write.
type Product struct {
	ID                       int64
	Code                     string
	Name                     string
	MasterID                 *int64
	Archived                 bool
	Type                     ProductType
	Group                    string
	WIPForClusterID          *int64
	ProductionCapacityPerDay float64
	QtyOnHand                float64
	UpdatedAt                time.Time
}

// Record is the kind-independent view the merge resolver operates on.
type Record struct {
	ID       int64
	Name     string
	MasterID *int64
	Archived bool
}
