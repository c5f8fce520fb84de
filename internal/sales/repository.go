package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/enrichment"
	"github.com/tidemark-io/tidemark/internal/platform/db"
)

// Repository loads raw facts and the dimension snapshot they enrich against.
type Repository interface {
	// Load reads facts for the range plus the full dimension snapshot in one
	// read-only repeatable-read transaction, so a concurrent merge is either
	// fully visible or not at all.
	Load(ctx context.Context, from, to time.Time) ([]enrichment.SalesLine, enrichment.Dimensions, error)
}

// PGRepository provides PostgreSQL backed fact and dimension reads.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Load implements Repository.
func (r *PGRepository) Load(ctx context.Context, from, to time.Time) ([]enrichment.SalesLine, enrichment.Dimensions, error) {
	var facts []enrichment.SalesLine
	var dims enrichment.Dimensions

	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if facts, err = loadFacts(ctx, tx, from, to); err != nil {
			return err
		}
		if dims.Customers, err = loadCustomers(ctx, tx); err != nil {
			return err
		}
		if dims.Products, err = loadProducts(ctx, tx); err != nil {
			return err
		}
		if dims.CustomerClusters, err = loadCustomerClusters(ctx, tx); err != nil {
			return err
		}
		if dims.ExcludedGroups, err = loadExcludedGroups(ctx, tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, enrichment.Dimensions{}, err
	}
	return facts, dims, nil
}

func loadFacts(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]enrichment.SalesLine, error) {
	const query = `
		SELECT id, invoice_number, invoice_date, customer_id, product_id,
		       qty, unit_price, line_amount, COALESCE(document_type, '')
		FROM fct_sales_line
		WHERE invoice_date >= $1 AND invoice_date <= $2
		ORDER BY invoice_date, id`
	rows, err := tx.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("sales: load facts: %w", err)
	}
	defer rows.Close()
	var out []enrichment.SalesLine
	for rows.Next() {
		var f enrichment.SalesLine
		if err := rows.Scan(&f.ID, &f.InvoiceNumber, &f.InvoiceDate, &f.CustomerID, &f.ProductID,
			&f.Qty, &f.UnitPrice, &f.LineAmount, &f.DocumentType); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func loadCustomers(ctx context.Context, tx pgx.Tx) (map[int64]dimension.Customer, error) {
	const query = `
		SELECT id, name, master_id, archived,
		       COALESCE(market, ''), COALESCE(merchant_group, ''), COALESCE(bill_to, '')
		FROM dim_customer`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sales: load customers: %w", err)
	}
	defer rows.Close()
	out := map[int64]dimension.Customer{}
	for rows.Next() {
		var c dimension.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.MasterID, &c.Archived,
			&c.Market, &c.MerchantGroup, &c.BillTo); err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func loadProducts(ctx context.Context, tx pgx.Tx) (map[int64]dimension.Product, error) {
	const query = `
		SELECT id, COALESCE(code, ''), name, master_id, archived,
		       COALESCE(product_type, 'finished'), COALESCE(product_group, '')
		FROM dim_product`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sales: load products: %w", err)
	}
	defer rows.Close()
	out := map[int64]dimension.Product{}
	for rows.Next() {
		var p dimension.Product
		var ptype string
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.MasterID, &p.Archived, &ptype, &p.Group); err != nil {
			return nil, err
		}
		p.Type = dimension.ProductType(ptype)
		out[p.ID] = p
	}
	return out, rows.Err()
}

func loadCustomerClusters(ctx context.Context, tx pgx.Tx) (map[int64]enrichment.ClusterRef, error) {
	const query = `
		SELECT m.entity_id, c.id, c.label
		FROM cluster_membership m
		JOIN dim_cluster c ON c.id = m.cluster_id AND c.type = 'customer'`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sales: load customer clusters: %w", err)
	}
	defer rows.Close()
	out := map[int64]enrichment.ClusterRef{}
	for rows.Next() {
		var entityID int64
		var ref enrichment.ClusterRef
		if err := rows.Scan(&entityID, &ref.ID, &ref.Label); err != nil {
			return nil, err
		}
		out[entityID] = ref
	}
	return out, rows.Err()
}

func loadExcludedGroups(ctx context.Context, tx pgx.Tx) (map[string]struct{}, error) {
	const query = `SELECT product_group FROM product_group_exclusion`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sales: load excluded groups: %w", err)
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return nil, err
		}
		out[group] = struct{}{}
	}
	return out, rows.Err()
}
