package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/platform/db"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// Repository is the persistence port for clusters, memberships, and supplier
// stock entries.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CreateCluster(ctx context.Context, c Cluster) (Cluster, error)
	GetCluster(ctx context.Context, id int64) (Cluster, error)
	ListClusters(ctx context.Context) ([]Cluster, error)
	UpdateBaseUnitLabel(ctx context.Context, clusterID int64, label string) error

	UpsertMembership(ctx context.Context, m Membership) error
	UpdateMultiplier(ctx context.Context, entityID int64, value float64) (bool, error)
	// ClusterOf returns the cluster a product entity currently belongs to.
	ClusterOf(ctx context.Context, entityID int64) (*int64, error)

	ListMemberProducts(ctx context.Context, clusterID *int64) ([]MemberProduct, error)
	ListWIPProducts(ctx context.Context) ([]WIPProduct, error)
	// SupplierQuantities sums supplier-reported stock per product for one
	// reporting week across all suppliers.
	SupplierQuantities(ctx context.Context, weekEnding time.Time) (map[int64]float64, error)
	UpsertStockEntries(ctx context.Context, userID string, entries []StockEntry) error

	ProductExists(ctx context.Context, id int64) (exists, archived, wip bool, err error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	// CustomerClusterRefs maps customer id to its cluster for enrichment.
	CustomerClusterRefs(ctx context.Context) (map[int64]Cluster, error)
}

// PGRepository provides PostgreSQL backed persistence for clusters.
type PGRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
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

// CreateCluster inserts a new cluster and returns it with its id.
func (r *PGRepository) CreateCluster(ctx context.Context, c Cluster) (Cluster, error) {
	const query = `
		INSERT INTO dim_cluster (label, type, base_unit_label)
		VALUES ($1, $2, $3)
		RETURNING id`
	err := r.row(ctx, query, c.Label, c.Type, c.BaseUnitLabel).Scan(&c.ID)
	if err != nil {
		return Cluster{}, fmt.Errorf("cluster: create: %w", mapPgError(err))
	}
	return c, nil
}

// GetCluster loads one cluster.
func (r *PGRepository) GetCluster(ctx context.Context, id int64) (Cluster, error) {
	const query = `SELECT id, label, type, COALESCE(base_unit_label, '') FROM dim_cluster WHERE id = $1`
	var c Cluster
	err := r.row(ctx, query, id).Scan(&c.ID, &c.Label, &c.Type, &c.BaseUnitLabel)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cluster{}, fmt.Errorf("%w: cluster %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Cluster{}, fmt.Errorf("cluster: get %d: %w", id, err)
	}
	return c, nil
}

// ListClusters returns every cluster ordered by label.
func (r *PGRepository) ListClusters(ctx context.Context) ([]Cluster, error) {
	const query = `SELECT id, label, type, COALESCE(base_unit_label, '') FROM dim_cluster ORDER BY label`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cluster: list: %w", err)
	}
	defer rows.Close()
	var out []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.Label, &c.Type, &c.BaseUnitLabel); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateBaseUnitLabel sets the base unit label for a product cluster.
func (r *PGRepository) UpdateBaseUnitLabel(ctx context.Context, clusterID int64, label string) error {
	const query = `UPDATE dim_cluster SET base_unit_label = $2 WHERE id = $1`
	tag, err := r.exec(ctx, query, clusterID, label)
	if err != nil {
		return fmt.Errorf("cluster: update base unit: %w", err)
	}
	if tag == 0 {
		return fmt.Errorf("%w: cluster %d", shared.ErrNotFound, clusterID)
	}
	return nil
}

// UpsertMembership assigns an entity to a cluster, replacing any previous
// multiplier for the same pair.
func (r *PGRepository) UpsertMembership(ctx context.Context, m Membership) error {
	const query = `
		INSERT INTO cluster_membership (cluster_id, entity_id, unit_multiplier)
		VALUES ($1, $2, $3)
		ON CONFLICT (cluster_id, entity_id)
		DO UPDATE SET unit_multiplier = EXCLUDED.unit_multiplier`
	if _, err := r.exec(ctx, query, m.ClusterID, m.EntityID, m.UnitMultiplier); err != nil {
		return fmt.Errorf("cluster: upsert membership: %w", mapPgError(err))
	}
	return nil
}

// UpdateMultiplier sets the multiplier for an existing membership. Returns
// false when the entity has no membership.
func (r *PGRepository) UpdateMultiplier(ctx context.Context, entityID int64, value float64) (bool, error) {
	const query = `UPDATE cluster_membership SET unit_multiplier = $2 WHERE entity_id = $1`
	tag, err := r.exec(ctx, query, entityID, value)
	if err != nil {
		return false, fmt.Errorf("cluster: update multiplier: %w", err)
	}
	return tag > 0, nil
}

// ClusterOf returns the cluster id a product entity belongs to, nil if none.
func (r *PGRepository) ClusterOf(ctx context.Context, entityID int64) (*int64, error) {
	const query = `SELECT cluster_id FROM cluster_membership WHERE entity_id = $1 LIMIT 1`
	var id int64
	err := r.row(ctx, query, entityID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cluster: cluster of %d: %w", entityID, err)
	}
	return &id, nil
}

// ListMemberProducts joins memberships with product rows, optionally scoped
// to one cluster.
func (r *PGRepository) ListMemberProducts(ctx context.Context, clusterID *int64) ([]MemberProduct, error) {
	query := `
		SELECT m.cluster_id, p.id, COALESCE(p.code, ''), p.name,
		       m.unit_multiplier, COALESCE(p.qty_on_hand, 0), p.archived
		FROM cluster_membership m
		JOIN dim_product p ON p.id = m.entity_id
		JOIN dim_cluster c ON c.id = m.cluster_id AND c.type = 'product'`
	args := []any{}
	if clusterID != nil {
		query += ` WHERE m.cluster_id = $1`
		args = append(args, *clusterID)
	}
	query += ` ORDER BY m.cluster_id, p.name`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cluster: member products: %w", err)
	}
	defer rows.Close()
	var out []MemberProduct
	for rows.Next() {
		var mp MemberProduct
		if err := rows.Scan(&mp.ClusterID, &mp.ProductID, &mp.ProductCode, &mp.ProductName,
			&mp.UnitMultiplier, &mp.QtyOnHand, &mp.Archived); err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

// ListWIPProducts returns all WIP products with their cluster links.
func (r *PGRepository) ListWIPProducts(ctx context.Context) ([]WIPProduct, error) {
	const query = `
		SELECT p.wip_for_cluster_id, p.id, p.name, COALESCE(p.production_capacity_per_day, 0)
		FROM dim_product p
		WHERE p.product_type = 'wip' AND p.wip_for_cluster_id IS NOT NULL AND NOT p.archived
		ORDER BY p.id`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cluster: wip products: %w", err)
	}
	defer rows.Close()
	var out []WIPProduct
	for rows.Next() {
		var wp WIPProduct
		if err := rows.Scan(&wp.ClusterID, &wp.ProductID, &wp.ProductName, &wp.CapacityPerDay); err != nil {
			return nil, err
		}
		out = append(out, wp)
	}
	return out, rows.Err()
}

// SupplierQuantities sums supplier stock per product for one week.
func (r *PGRepository) SupplierQuantities(ctx context.Context, weekEnding time.Time) (map[int64]float64, error) {
	const query = `
		SELECT product_id, SUM(quantity_on_hand)
		FROM supplier_stock_entry
		WHERE week_ending = $1
		GROUP BY product_id`
	rows, err := r.query(ctx, query, weekEnding)
	if err != nil {
		return nil, fmt.Errorf("cluster: supplier quantities: %w", err)
	}
	defer rows.Close()
	out := map[int64]float64{}
	for rows.Next() {
		var id int64
		var qty float64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

// UpsertStockEntries writes supplier stock rows, last writer wins per
// (user, product, week).
func (r *PGRepository) UpsertStockEntries(ctx context.Context, userID string, entries []StockEntry) error {
	return r.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		pgRepo := repo.(*PGRepository)
		const query = `
			INSERT INTO supplier_stock_entry (user_id, product_id, week_ending, quantity_on_hand)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, product_id, week_ending)
			DO UPDATE SET quantity_on_hand = EXCLUDED.quantity_on_hand, updated_at = NOW()`
		for _, e := range entries {
			if _, err := pgRepo.exec(ctx, query, userID, e.ProductID, e.WeekEnding, e.QtyOnHand); err != nil {
				return fmt.Errorf("cluster: upsert stock entry: %w", mapPgError(err))
			}
		}
		return nil
	})
}

// ProductExists reports existence plus the flags membership validation needs.
func (r *PGRepository) ProductExists(ctx context.Context, id int64) (bool, bool, bool, error) {
	const query = `SELECT archived, COALESCE(product_type, '') FROM dim_product WHERE id = $1`
	var archived bool
	var ptype string
	err := r.row(ctx, query, id).Scan(&archived, &ptype)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, false, nil
	}
	if err != nil {
		return false, false, false, fmt.Errorf("cluster: product exists: %w", err)
	}
	return true, archived, ptype == string(dimension.ProductWIP), nil
}

// CustomerExists reports whether the customer row exists.
func (r *PGRepository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT 1 FROM dim_customer WHERE id = $1`
	var one int
	err := r.row(ctx, query, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cluster: customer exists: %w", err)
	}
	return true, nil
}

// CustomerClusterRefs maps member customers to their cluster.
func (r *PGRepository) CustomerClusterRefs(ctx context.Context) (map[int64]Cluster, error) {
	const query = `
		SELECT m.entity_id, c.id, c.label, c.type, COALESCE(c.base_unit_label, '')
		FROM cluster_membership m
		JOIN dim_cluster c ON c.id = m.cluster_id AND c.type = 'customer'`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cluster: customer refs: %w", err)
	}
	defer rows.Close()
	out := map[int64]Cluster{}
	for rows.Next() {
		var entityID int64
		var c Cluster
		if err := rows.Scan(&entityID, &c.ID, &c.Label, &c.Type, &c.BaseUnitLabel); err != nil {
			return nil, err
		}
		out[entityID] = c
	}
	return out, rows.Err()
}
