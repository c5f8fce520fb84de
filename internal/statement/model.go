package statement

import "time"

// Aging bucket labels, oldest last.
const (
	BucketCurrent = "current"
	Bucket1To30   = "1-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
)

// Buckets lists the labels in reporting order.
var Buckets = []string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}

// Invoice is one open receivable document as stored.
type Invoice struct {
	ID            int64
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       *time.Time
	CustomerID    int64
	AmountDue     float64
	Paid          bool
	DocumentType  string
}

// Document types carried on fct_invoice. Payables never reach statements.
const (
	DocumentSale    = "sale"
	DocumentPayable = "payable"
)

// DetailRow is one statement line, aged as of the statement date.
type DetailRow struct {
	MerchantGroup     string    `json:"merchant_group"`
	CustomerName      string    `json:"customer_name"`
	HeadOfficeAddress string    `json:"head_office_address"`
	InvoiceNumber     string    `json:"invoice_number"`
	InvoiceDate       time.Time `json:"invoice_date"`
	DueDate           time.Time `json:"due_date"`
	OutstandingAmount float64   `json:"outstanding_amount"`
	AgingBucket       string    `json:"aging_bucket"`
}

// MerchantSummary aggregates one merchant group's statement.
type MerchantSummary struct {
	MerchantGroup     string             `json:"merchant_group"`
	HeadOfficeAddress string             `json:"head_office_address"`
	BranchCount       int                `json:"branch_count"`
	InvoiceCount      int                `json:"invoice_count"`
	Total             float64            `json:"total"`
	BucketTotals      map[string]float64 `json:"bucket_totals"`
}
