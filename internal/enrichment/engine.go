// Package enrichment holds the one canonical definition of how raw sales
// facts are joined against resolved dimensions and which rows revenue
// reporting excludes. Every rollup consumes this engine's output; none
// re-implements the predicate.
package enrichment

import (
	"fmt"
	"time"

	"github.com/tidemark-io/tidemark/internal/dimension"
)

// UnknownLabel substitutes missing dimension attributes. Rows are never
// dropped for missing attributes, only by the explicit exclusion rules.
const UnknownLabel = "Unknown"

// SalesLine is a raw immutable fact row.
type SalesLine struct {
	ID            int64
	InvoiceNumber string
	InvoiceDate   time.Time
	CustomerID    int64
	ProductID     int64
	Qty           float64
	UnitPrice     float64
	LineAmount    float64
	DocumentType  string
}

// ClusterRef names the cluster a canonical customer belongs to.
type ClusterRef struct {
	ID    int64
	Label string
}

// Dimensions is the consistent dimension snapshot one enrichment pass reads.
// Loaded inside a single repeatable-read transaction, so a concurrent merge
// is either fully visible or not at all.
type Dimensions struct {
	Customers        map[int64]dimension.Customer
	Products         map[int64]dimension.Product
	CustomerClusters map[int64]ClusterRef
	ExcludedGroups   map[string]struct{}
}

// Line is an enriched fact row carrying canonical dimension attributes.
type Line struct {
	SalesLine

	CanonicalCustomerID int64
	CustomerName        string
	Market              string
	MerchantGroup       string

	CanonicalProductID int64
	ProductCode        string
	ProductName        string
	ProductGroup       string

	ClusterID    *int64
	ClusterLabel string
}

// Exclusion reasons, reported per pass for observability.
const (
	ReasonArchivedProduct  = "archived_product"
	ReasonWIPProduct       = "wip_product"
	ReasonArchivedCustomer = "archived_customer"
	ReasonExcludedGroup    = "excluded_group"
)

// Result is the outcome of one enrichment pass.
type Result struct {
	Lines    []Line
	Excluded map[string]int
}

// Enrich derives enriched rows from raw facts and the dimension snapshot.
// Read-only; recomputed per query, no persisted staleness. A corrupt merge
// chain (cycle or over-depth) aborts the whole pass: attributing revenue to
// a wrong canonical id is worse than serving no report.
func Enrich(facts []SalesLine, dims Dimensions) (Result, error) {
	res := Result{
		Lines:    make([]Line, 0, len(facts)),
		Excluded: map[string]int{},
	}
	for _, fact := range facts {
		line, reason, err := enrichOne(fact, dims)
		if err != nil {
			return Result{}, fmt.Errorf("sales line %d: %w", fact.ID, err)
		}
		if reason != "" {
			res.Excluded[reason]++
			continue
		}
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

func enrichOne(fact SalesLine, dims Dimensions) (Line, string, error) {
	productPath, err := resolveProduct(fact.ProductID, dims)
	if err != nil {
		return Line{}, "", err
	}
	for _, id := range productPath {
		if p, ok := dims.Products[id]; ok && p.Archived {
			// Archived anywhere on the chain excludes the row, including
			// intermediate masters.
			return Line{}, ReasonArchivedProduct, nil
		}
	}
	productRootID := productPath[len(productPath)-1]
	productRoot, hasProduct := dims.Products[productRootID]
	if hasProduct && productRoot.Type == dimension.ProductWIP {
		return Line{}, ReasonWIPProduct, nil
	}

	customerPath, err := resolveCustomer(fact.CustomerID, dims)
	if err != nil {
		return Line{}, "", err
	}
	customerRootID := customerPath[len(customerPath)-1]
	customerRoot, hasCustomer := dims.Customers[customerRootID]
	// An archived customer merged into an active master rolls up under the
	// master and stays included. Only an archived root excludes the row;
	// breaking this silently drops revenue.
	if hasCustomer && customerRoot.Archived {
		return Line{}, ReasonArchivedCustomer, nil
	}

	productGroup := UnknownLabel
	if hasProduct && productRoot.Group != "" {
		productGroup = productRoot.Group
	} else if own, ok := dims.Products[fact.ProductID]; ok && own.Group != "" {
		productGroup = own.Group
	}
	if _, excluded := dims.ExcludedGroups[productGroup]; excluded {
		return Line{}, ReasonExcludedGroup, nil
	}

	line := Line{
		SalesLine:           fact,
		CanonicalCustomerID: customerRootID,
		CustomerName:        UnknownLabel,
		Market:              UnknownLabel,
		MerchantGroup:       UnknownLabel,
		CanonicalProductID:  productRootID,
		ProductCode:         UnknownLabel,
		ProductName:         UnknownLabel,
		ProductGroup:        productGroup,
	}

	if hasCustomer {
		applyCustomer(&line, customerRoot)
	} else if own, ok := dims.Customers[fact.CustomerID]; ok {
		applyCustomer(&line, own)
	}
	if hasProduct {
		applyProduct(&line, productRoot)
	} else if own, ok := dims.Products[fact.ProductID]; ok {
		applyProduct(&line, own)
	}

	if ref, ok := dims.CustomerClusters[customerRootID]; ok {
		id := ref.ID
		line.ClusterID = &id
		line.ClusterLabel = ref.Label
	}
	return line, "", nil
}

func applyCustomer(line *Line, c dimension.Customer) {
	if c.Name != "" {
		line.CustomerName = c.Name
	}
	if c.Market != "" {
		line.Market = c.Market
	}
	if c.MerchantGroup != "" {
		line.MerchantGroup = c.MerchantGroup
	}
}

func applyProduct(line *Line, p dimension.Product) {
	if p.Code != "" {
		line.ProductCode = p.Code
	}
	if p.Name != "" {
		line.ProductName = p.Name
	}
}

func resolveCustomer(id int64, dims Dimensions) ([]int64, error) {
	if _, ok := dims.Customers[id]; !ok {
		// Fact references a customer the dimension load never saw; treat
		// the raw id as canonical and let attributes degrade to Unknown.
		return []int64{id}, nil
	}
	return dimension.ResolvePath(id, func(id int64) (*int64, bool, error) {
		c, ok := dims.Customers[id]
		if !ok {
			// Dangling master pointer: treat the missing row as the root
			// and let its attributes degrade to Unknown.
			return nil, true, nil
		}
		return c.MasterID, true, nil
	})
}

func resolveProduct(id int64, dims Dimensions) ([]int64, error) {
	if _, ok := dims.Products[id]; !ok {
		return []int64{id}, nil
	}
	return dimension.ResolvePath(id, func(id int64) (*int64, bool, error) {
		p, ok := dims.Products[id]
		if !ok {
			return nil, true, nil
		}
		return p.MasterID, true, nil
	})
}
