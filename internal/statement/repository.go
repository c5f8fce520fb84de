package statement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/platform/db"
)

// Snapshot is everything one statement run reads, loaded in a single
// read-only transaction.
type Snapshot struct {
	Invoices  []Invoice
	Customers map[int64]dimension.Customer
	Allowlist map[string]struct{}
}

// Repository loads the statement snapshot.
type Repository interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	// AllowlistedGroups returns the editable merchant allow-list.
	AllowlistedGroups(ctx context.Context) ([]string, error)
	AddAllowlistedGroup(ctx context.Context, group string) error
	RemoveAllowlistedGroup(ctx context.Context, group string) (bool, error)
}

// PGRepository provides PostgreSQL backed statement reads.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LoadSnapshot implements Repository.
func (r *PGRepository) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if snap.Invoices, err = loadOpenInvoices(ctx, tx); err != nil {
			return err
		}
		if snap.Customers, err = loadCustomers(ctx, tx); err != nil {
			return err
		}
		if snap.Allowlist, err = loadAllowlist(ctx, tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func loadOpenInvoices(ctx context.Context, tx pgx.Tx) ([]Invoice, error) {
	const query = `
		SELECT id, invoice_number, invoice_date, due_date, customer_id,
		       amount_due, paid, COALESCE(document_type, 'sale')
		FROM fct_invoice
		WHERE NOT paid AND amount_due > 0`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("statement: load invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate,
			&inv.CustomerID, &inv.AmountDue, &inv.Paid, &inv.DocumentType); err != nil {
			return nil, err
		}
		out = append(out, inv)
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
		return nil, fmt.Errorf("statement: load customers: %w", err)
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

func loadAllowlist(ctx context.Context, tx pgx.Tx) (map[string]struct{}, error) {
	const query = `SELECT merchant_group FROM merchant_allowlist`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("statement: load allowlist: %w", err)
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

// AllowlistedGroups lists the allow-list alphabetically.
func (r *PGRepository) AllowlistedGroups(ctx context.Context) ([]string, error) {
	const query = `SELECT merchant_group FROM merchant_allowlist ORDER BY merchant_group`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("statement: list allowlist: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	return out, rows.Err()
}

// AddAllowlistedGroup inserts a merchant group, idempotently.
func (r *PGRepository) AddAllowlistedGroup(ctx context.Context, group string) error {
	const query = `INSERT INTO merchant_allowlist (merchant_group) VALUES ($1) ON CONFLICT DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, group); err != nil {
		return fmt.Errorf("statement: add allowlist: %w", err)
	}
	return nil
}

// RemoveAllowlistedGroup deletes a merchant group, reporting whether it was
// present.
func (r *PGRepository) RemoveAllowlistedGroup(ctx context.Context, group string) (bool, error) {
	const query = `DELETE FROM merchant_allowlist WHERE merchant_group = $1`
	tag, err := r.pool.Exec(ctx, query, group)
	if err != nil {
		return false, fmt.Errorf("statement: remove allowlist: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
