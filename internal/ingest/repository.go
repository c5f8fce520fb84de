package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark-io/tidemark/internal/platform/db"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// Repository is the persistence port for collaborator loads.
type Repository interface {
	UpsertCustomers(ctx context.Context, rows []CustomerUpsert) error
	UpsertProducts(ctx context.Context, rows []ProductUpsert) error
	AppendSalesLines(ctx context.Context, rows []SalesLineRow) (int, error)
	UpsertInvoices(ctx context.Context, rows []InvoiceRow) error
}

// PGRepository provides PostgreSQL backed ingest writes.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UpsertCustomers writes customer rows. master_id and updated_at of merged
// rows are preserved; ingest never unpicks a stewardship decision.
func (r *PGRepository) UpsertCustomers(ctx context.Context, rows []CustomerUpsert) error {
	const query = `
		INSERT INTO dim_customer (id, name, market, merchant_group, bill_to, archived, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			market = EXCLUDED.market,
			merchant_group = EXCLUDED.merchant_group,
			bill_to = EXCLUDED.bill_to,
			archived = EXCLUDED.archived,
			updated_at = NOW()`
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			if _, err := tx.Exec(ctx, query, row.ID, row.Name, row.Market,
				row.MerchantGroup, row.BillTo, row.Archived); err != nil {
				return fmt.Errorf("ingest: upsert customer %d: %w", row.ID, mapPgError(err))
			}
		}
		return nil
	})
}

// UpsertProducts writes product rows, preserving master_id of merged rows.
func (r *PGRepository) UpsertProducts(ctx context.Context, rows []ProductUpsert) error {
	const query = `
		INSERT INTO dim_product (id, code, name, product_type, product_group,
			wip_for_cluster_id, production_capacity_per_day, qty_on_hand, archived, updated_at)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'finished'), $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			product_type = EXCLUDED.product_type,
			product_group = EXCLUDED.product_group,
			wip_for_cluster_id = EXCLUDED.wip_for_cluster_id,
			production_capacity_per_day = EXCLUDED.production_capacity_per_day,
			qty_on_hand = EXCLUDED.qty_on_hand,
			archived = EXCLUDED.archived,
			updated_at = NOW()`
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			if _, err := tx.Exec(ctx, query, row.ID, row.Code, row.Name, row.ProductType,
				row.ProductGroup, row.WIPForClusterID, row.ProductionCapacityPerDay,
				row.QtyOnHand, row.Archived); err != nil {
				return fmt.Errorf("ingest: upsert product %d: %w", row.ID, mapPgError(err))
			}
		}
		return nil
	})
}

// AppendSalesLines inserts fact rows. Facts are append-only; there is no
// conflict target and duplicates are the loader's responsibility.
func (r *PGRepository) AppendSalesLines(ctx context.Context, rows []SalesLineRow) (int, error) {
	const query = `
		INSERT INTO fct_sales_line (invoice_number, invoice_date, customer_id,
			product_id, qty, unit_price, line_amount, document_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`
	var inserted int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			date, err := time.Parse("2006-01-02", row.InvoiceDate)
			if err != nil {
				return shared.Validationf("invoice %s: invalid date %q", row.InvoiceNumber, row.InvoiceDate)
			}
			if _, err := tx.Exec(ctx, query, row.InvoiceNumber, date, row.CustomerID,
				row.ProductID, row.Qty, row.UnitPrice, row.LineAmount, row.DocumentType); err != nil {
				return fmt.Errorf("ingest: append sales line %s: %w", row.InvoiceNumber, mapPgError(err))
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpsertInvoices writes receivable headers keyed by invoice number.
func (r *PGRepository) UpsertInvoices(ctx context.Context, rows []InvoiceRow) error {
	const query = `
		INSERT INTO fct_invoice (invoice_number, invoice_date, due_date, customer_id,
			amount_due, paid, document_type)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'sale'))
		ON CONFLICT (invoice_number) DO UPDATE SET
			due_date = EXCLUDED.due_date,
			amount_due = EXCLUDED.amount_due,
			paid = EXCLUDED.paid`
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			date, err := time.Parse("2006-01-02", row.InvoiceDate)
			if err != nil {
				return shared.Validationf("invoice %s: invalid date %q", row.InvoiceNumber, row.InvoiceDate)
			}
			var due *time.Time
			if row.DueDate != "" {
				parsed, err := time.Parse("2006-01-02", row.DueDate)
				if err != nil {
					return shared.Validationf("invoice %s: invalid due date %q", row.InvoiceNumber, row.DueDate)
				}
				due = &parsed
			}
			if _, err := tx.Exec(ctx, query, row.InvoiceNumber, date, due, row.CustomerID,
				row.AmountDue, row.Paid, row.DocumentType); err != nil {
				return fmt.Errorf("ingest: upsert invoice %s: %w", row.InvoiceNumber, mapPgError(err))
			}
		}
		return nil
	})
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", shared.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return shared.Validationf("unknown reference: %s", pgErr.ConstraintName)
		}
	}
	return err
}
