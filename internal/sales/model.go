package sales

import "time"

// Filters narrow a report to a slice of the enriched fact set. Zero values
// mean "no filter". All matching happens on canonical attributes, so a
// filter follows merges automatically.
type Filters struct {
	Market        string `json:"market,omitempty"`
	MerchantGroup string `json:"merchant_group,omitempty"`
	ProductGroup  string `json:"product_group,omitempty"`
	ClusterID     *int64 `json:"cluster_id,omitempty"`
}

// Overview is the headline figure set for a date range.
type Overview struct {
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	Revenue      float64        `json:"revenue"`
	Units        float64        `json:"units"`
	LineCount    int            `json:"line_count"`
	InvoiceCount int            `json:"invoice_count"`
	Excluded     map[string]int `json:"excluded,omitempty"`
}

// Breakdown dimensions.
const (
	ByMarket        = "market"
	ByMerchantGroup = "merchant_group"
	ByProductGroup  = "product_group"
	ByCluster       = "cluster"
	ByCustomer      = "customer"
	ByProduct       = "product"
)

// BreakdownRow is one bucket of a grouped report, ordered by revenue.
type BreakdownRow struct {
	Key     string  `json:"key"`
	Revenue float64 `json:"revenue"`
	Units   float64 `json:"units"`
	Share   float64 `json:"share"`
}

// YoYSeries is one year of monthly revenue, January first.
type YoYSeries struct {
	Year    int         `json:"year"`
	Months  [12]float64 `json:"months"`
	Revenue float64     `json:"revenue"`
	Units   float64     `json:"units"`
}

// YoYComparison holds the current year and the three preceding it.
type YoYComparison struct {
	Years []YoYSeries `json:"years"`
}
