package dimension

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark-io/tidemark/internal/platform/db"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// Repository is the persistence port for dimension rows. The pg
// implementation is transactional; tests substitute an in-memory fake.
type Repository interface {
	// WithTx runs fn against a transaction-bound repository. The merge
	// pointer updates and grandchild re-parenting commit together or not
	// at all.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	GetRecord(ctx context.Context, kind Kind, id int64) (Record, error)
	// LockRecords takes row locks on the given ids in ascending order so
	// overlapping merges serialize instead of deadlocking.
	LockRecords(ctx context.Context, kind Kind, ids []int64) error
	SetMaster(ctx context.Context, kind Kind, id int64, master *int64) error
	// ChildrenOf lists ids whose master pointer is one of parents.
	ChildrenOf(ctx context.Context, kind Kind, parents []int64) ([]int64, error)
	SetArchived(ctx context.Context, kind Kind, ids []int64, archived bool) error
	// ListMatchCandidates returns un-merged, un-archived records of a kind
	// for the fuzzy match pass.
	ListMatchCandidates(ctx context.Context, kind Kind) ([]Record, error)
	// ListInactive returns active root ids with no fact activity on or
	// after the given date.
	ListInactive(ctx context.Context, kind Kind, since time.Time) ([]int64, error)
}

// PGRepository provides PostgreSQL backed persistence for dimensions.
type PGRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepository constructs a repository over the shared pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) q() interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
} {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *PGRepository) exec(ctx context.Context, sql string, args ...any) error {
	var err error
	if r.tx != nil {
		_, err = r.tx.Exec(ctx, sql, args...)
	} else {
		_, err = r.pool.Exec(ctx, sql, args...)
	}
	return err
}

// WithTx wraps fn in a RepeatableRead transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{pool: r.pool, tx: tx})
	})
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindCustomer:
		return "dim_customer", nil
	case KindProduct:
		return "dim_product", nil
	default:
		return "", shared.Validationf("unknown dimension kind %q", kind)
	}
}

// GetRecord loads the resolution view of one row.
func (r *PGRepository) GetRecord(ctx context.Context, kind Kind, id int64) (Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Record{}, err
	}
	query := fmt.Sprintf(`SELECT id, name, master_id, archived FROM %s WHERE id = $1`, table)
	var rec Record
	err = r.q().QueryRow(ctx, query, id).Scan(&rec.ID, &rec.Name, &rec.MasterID, &rec.Archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("dimension: get %s %d: %w", kind, id, err)
	}
	return rec, nil
}

// LockRecords acquires FOR UPDATE locks in ascending id order.
func (r *PGRepository) LockRecords(ctx context.Context, kind Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	ordered := append([]int64(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1) ORDER BY id FOR UPDATE`, table)
	rows, err := r.q().Query(ctx, query, ordered)
	if err != nil {
		return fmt.Errorf("dimension: lock %s rows: %w", kind, err)
	}
	defer rows.Close()
	locked := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		locked++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != len(dedupe(ordered)) {
		return fmt.Errorf("%w: one or more %s ids do not exist", shared.ErrNotFound, kind)
	}
	return nil
}

// SetMaster updates the master pointer, nil restoring root status.
func (r *PGRepository) SetMaster(ctx context.Context, kind Kind, id int64, master *int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET master_id = $2, updated_at = NOW() WHERE id = $1`, table)
	if err := r.exec(ctx, query, id, master); err != nil {
		return fmt.Errorf("dimension: set master %s %d: %w", kind, id, err)
	}
	return nil
}

// ChildrenOf lists ids whose master is one of parents.
func (r *PGRepository) ChildrenOf(ctx context.Context, kind Kind, parents []int64) ([]int64, error) {
	if len(parents) == 0 {
		return nil, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE master_id = ANY($1) ORDER BY id`, table)
	rows, err := r.q().Query(ctx, query, parents)
	if err != nil {
		return nil, fmt.Errorf("dimension: children of %s: %w", kind, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetArchived flips the archived flag for the given ids.
func (r *PGRepository) SetArchived(ctx context.Context, kind Kind, ids []int64, archived bool) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET archived = $2, updated_at = NOW() WHERE id = ANY($1)`, table)
	if err := r.exec(ctx, query, ids, archived); err != nil {
		return fmt.Errorf("dimension: archive %s: %w", kind, err)
	}
	return nil
}

// ListMatchCandidates returns active roots for match suggestions.
func (r *PGRepository) ListMatchCandidates(ctx context.Context, kind Kind) ([]Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, name, master_id, archived
		FROM %s
		WHERE master_id IS NULL AND NOT archived
		ORDER BY name`, table)
	rows, err := r.q().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dimension: match candidates %s: %w", kind, err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.MasterID, &rec.Archived); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListInactive finds active rows without fact activity since the date.
func (r *PGRepository) ListInactive(ctx context.Context, kind Kind, since time.Time) ([]int64, error) {
	var query string
	switch kind {
	case KindCustomer:
		query = `
			SELECT c.id FROM dim_customer c
			WHERE NOT c.archived
			AND NOT EXISTS (
				SELECT 1 FROM fct_invoice i
				WHERE i.customer_id = c.id AND i.invoice_date >= $1
			)
			AND NOT EXISTS (
				SELECT 1 FROM fct_sales_line s
				WHERE s.customer_id = c.id AND s.invoice_date >= $1
			)
			ORDER BY c.id`
	case KindProduct:
		query = `
			SELECT p.id FROM dim_product p
			WHERE NOT p.archived
			AND NOT EXISTS (
				SELECT 1 FROM fct_sales_line s
				WHERE s.product_id = p.id AND s.invoice_date >= $1
			)
			ORDER BY p.id`
	default:
		return nil, shared.Validationf("unknown dimension kind %q", kind)
	}
	rows, err := r.q().Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("dimension: list inactive %s: %w", kind, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func dedupe(sorted []int64) []int64 {
	out := sorted[:0]
	var last int64
	for i, id := range sorted {
		if i == 0 || id != last {
			out = append(out, id)
		}
		last = id
	}
	return out
}
