package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiln-ops/kiln/internal/shared"
)

// Repository persists catalog masterdata in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetMaterial fetches one raw material.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (RawMaterial, error) {
	var m RawMaterial
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, unit, reorder_point, current_stock_qty, standard_cost, default_location_id, created_at, updated_at
FROM raw_materials WHERE id=$1`, id).
		Scan(&m.ID, &m.SKU, &m.Name, &m.Unit, &m.ReorderPoint, &m.CurrentStockQty, &m.StandardCost, &m.DefaultLocationID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RawMaterial{}, shared.Errorf(shared.ErrNotFound, "catalog: material %d", id)
		}
		return RawMaterial{}, err
	}
	return m, nil
}

// CreateMaterial inserts a raw material and returns its ID.
func (r *Repository) CreateMaterial(ctx context.Context, m RawMaterial) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO raw_materials (sku, name, unit, reorder_point, current_stock_qty, standard_cost, default_location_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,$5,$6,NOW(),NOW()) RETURNING id`, m.SKU, m.Name, m.Unit, m.ReorderPoint, m.StandardCost, m.DefaultLocationID).Scan(&id)
	return id, err
}

// ListMaterials returns materials ordered by SKU.
func (r *Repository) ListMaterials(ctx context.Context, limit, offset int) ([]RawMaterial, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, reorder_point, current_stock_qty, standard_cost, default_location_id, created_at, updated_at
FROM raw_materials ORDER BY sku ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaterials(rows)
}

// ListLowStockMaterials returns materials whose cached stock is under the reorder point.
func (r *Repository) ListLowStockMaterials(ctx context.Context) ([]RawMaterial, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, reorder_point, current_stock_qty, standard_cost, default_location_id, created_at, updated_at
FROM raw_materials WHERE current_stock_qty < reorder_point ORDER BY sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaterials(rows)
}

func scanMaterials(rows pgx.Rows) ([]RawMaterial, error) {
	materials := []RawMaterial{}
	for rows.Next() {
		var m RawMaterial
		if err := rows.Scan(&m.ID, &m.SKU, &m.Name, &m.Unit, &m.ReorderPoint, &m.CurrentStockQty, &m.StandardCost, &m.DefaultLocationID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// MaterialStockCache returns the denormalized stock cache for every material.
func (r *Repository) MaterialStockCache(ctx context.Context) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, current_stock_qty FROM raw_materials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cache := map[int64]int64{}
	for rows.Next() {
		var id, qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		cache[id] = qty
	}
	return cache, rows.Err()
}

// SetMaterialStock overwrites one material's stock cache entry.
func (r *Repository) SetMaterialStock(ctx context.Context, materialID, qty int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE raw_materials SET current_stock_qty=$2, updated_at=NOW() WHERE id=$1`, materialID, qty)
	return err
}

// GetProduct fetches one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, unit, default_batch_size, created_at, updated_at FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.DefaultBatchSize, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.Errorf(shared.ErrNotFound, "catalog: product %d", id)
		}
		return Product{}, err
	}
	return p, nil
}

// CreateProduct inserts a product and returns its ID.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, name, unit, default_batch_size, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`, p.SKU, p.Name, p.Unit, p.DefaultBatchSize).Scan(&id)
	return id, err
}

// GetLocation fetches one location.
func (r *Repository) GetLocation(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM locations WHERE id=$1`, id).Scan(&l.ID, &l.Name, &l.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, shared.Errorf(shared.ErrNotFound, "catalog: location %d", id)
		}
		return Location{}, err
	}
	return l, nil
}

// CreateLocation inserts a location and returns its ID.
func (r *Repository) CreateLocation(ctx context.Context, l Location) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO locations (name, active) VALUES ($1,$2) RETURNING id`, l.Name, l.Active).Scan(&id)
	return id, err
}

// ActiveBOM lists the active bill-of-materials lines for a product.
func (r *Repository) ActiveBOM(ctx context.Context, productID int64) ([]BOMItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, material_id, quantity_per_unit, version, active, created_at
FROM bom_items WHERE product_id=$1 AND active ORDER BY material_id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BOMItem{}
	for rows.Next() {
		var b BOMItem
		if err := rows.Scan(&b.ID, &b.ProductID, &b.MaterialID, &b.QuantityPerUnit, &b.Version, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// UpsertBOMItem inserts a new BOM line version and deactivates the previous
// active version for the same (product, material) pair in one transaction.
func (r *Repository) UpsertBOMItem(ctx context.Context, item BOMItem) (BOMItem, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return BOMItem{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM bom_items WHERE product_id=$1 AND material_id=$2`,
		item.ProductID, item.MaterialID).Scan(&version)
	if err != nil {
		return BOMItem{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE bom_items SET active=false WHERE product_id=$1 AND material_id=$2 AND active`,
		item.ProductID, item.MaterialID); err != nil {
		return BOMItem{}, err
	}
	item.Version = version + 1
	item.Active = true
	err = tx.QueryRow(ctx, `INSERT INTO bom_items (product_id, material_id, quantity_per_unit, version, active, created_at)
VALUES ($1,$2,$3,$4,true,NOW()) RETURNING id, created_at`,
		item.ProductID, item.MaterialID, item.QuantityPerUnit, item.Version).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return BOMItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BOMItem{}, err
	}
	return item, nil
}
