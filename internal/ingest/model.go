package ingest

// CustomerUpsert is one customer row from the upstream system of record.
// Merge pointers are never writable through ingest; stewardship owns them.
type CustomerUpsert struct {
	ID            int64  `json:"id" validate:"required,gt=0"`
	Name          string `json:"name" validate:"required"`
	Market        string `json:"market"`
	MerchantGroup string `json:"merchant_group"`
	BillTo        string `json:"bill_to"`
	Archived      bool   `json:"archived"`
}

// ProductUpsert is one product row from the upstream system of record.
type ProductUpsert struct {
	ID                       int64   `json:"id" validate:"required,gt=0"`
	Code                     string  `json:"code"`
	Name                     string  `json:"name" validate:"required"`
	ProductType              string  `json:"product_type" validate:"omitempty,oneof=finished wip"`
	ProductGroup             string  `json:"product_group"`
	WIPForClusterID          *int64  `json:"wip_for_cluster_id"`
	ProductionCapacityPerDay float64 `json:"production_capacity_per_day" validate:"gte=0"`
	QtyOnHand                float64 `json:"qty_on_hand"`
	Archived                 bool    `json:"archived"`
}

// SalesLineRow is one immutable fact row. Loads are append-only; corrections
// arrive as negating rows, the way the upstream ledger issues credits.
type SalesLineRow struct {
	InvoiceNumber string  `json:"invoice_number" validate:"required"`
	InvoiceDate   string  `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	CustomerID    int64   `json:"customer_id" validate:"required,gt=0"`
	ProductID     int64   `json:"product_id" validate:"required,gt=0"`
	Qty           float64 `json:"qty"`
	UnitPrice     float64 `json:"unit_price"`
	LineAmount    float64 `json:"line_amount"`
	DocumentType  string  `json:"document_type" validate:"omitempty,oneof=sale payable"`
}

// InvoiceRow is one receivable document header. Re-sending an invoice number
// updates its paid flag and amount due.
type InvoiceRow struct {
	InvoiceNumber string  `json:"invoice_number" validate:"required"`
	InvoiceDate   string  `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate       string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	CustomerID    int64   `json:"customer_id" validate:"required,gt=0"`
	AmountDue     float64 `json:"amount_due" validate:"gte=0"`
	Paid          bool    `json:"paid"`
	DocumentType  string  `json:"document_type" validate:"omitempty,oneof=sale payable"`
}
