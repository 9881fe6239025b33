package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const itemColumns = `id, kind, material_id, product_id, batch_id, location_id, qty_on_hand, qty_reserved, unit, status, lot_number, expiry_date, unit_cost, source, created_at, updated_at`

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrRowNotFound indicates a missing row at the repository level.
var ErrRowNotFound = errors.New("inventory: row not found")

// ItemKey identifies the (kind, material|product, batch, location, lot)
// tuple a stock position lives under.
type ItemKey struct {
	Kind       ItemKind
	MaterialID *int64
	ProductID  *int64
	BatchID    *int64
	LocationID int64
	LotNumber  string
}

// TxRepository exposes transactional operations used by the service. Every
// quantity mutation happens through one of these inside a single transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	FindItemForUpdate(ctx context.Context, key ItemKey) (Item, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItemQuantities(ctx context.Context, itemID, onHand, reserved int64) error
	UpdateItemStatus(ctx context.Context, itemID int64, status ItemStatus) error
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
	AddMaterialStock(ctx context.Context, materialID, delta int64) error
	LocationName(ctx context.Context, locationID int64) (string, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetItem loads one item without locking.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, itemID)
	return scanItem(row)
}

// ListConsumableLots returns the FIFO candidate set for a material: available
// items with uncommitted stock, oldest expiry first, nulls last, then oldest
// row first. The order is deterministic so repeated runs consume the same
// sequence.
func (r *Repository) ListConsumableLots(ctx context.Context, materialID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE kind='MATERIAL' AND material_id=$1 AND status='AVAILABLE' AND qty_on_hand - qty_reserved > 0
ORDER BY expiry_date ASC NULLS LAST, created_at ASC, id ASC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListItemsByBatch returns every stock position tied to a production batch.
func (r *Repository) ListItemsByBatch(ctx context.Context, batchID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE batch_id=$1 ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// AvailableForMaterial sums uncommitted stock for a material across all
// available items.
func (r *Repository) AvailableForMaterial(ctx context.Context, materialID int64) (int64, error) {
	var available int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty_on_hand - qty_reserved), 0) FROM inventory_items
WHERE kind='MATERIAL' AND material_id=$1 AND status='AVAILABLE'`, materialID).Scan(&available)
	return available, err
}

// AvailableByProduct lists available finished-goods items for a product.
func (r *Repository) AvailableByProduct(ctx context.Context, productID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE kind='PRODUCT' AND product_id=$1 AND status='AVAILABLE' AND qty_on_hand - qty_reserved > 0
ORDER BY created_at ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListItems returns a filtered page of items plus the unfiltered total.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter, limit, offset int) ([]Item, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ` WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, value any) {
		n++
		where += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, value)
	}
	if filter.Kind != "" {
		add("kind=", string(filter.Kind))
	}
	if filter.MaterialID != 0 {
		add("material_id=", filter.MaterialID)
	}
	if filter.ProductID != 0 {
		add("product_id=", filter.ProductID)
	}
	if filter.BatchID != 0 {
		add("batch_id=", filter.BatchID)
	}
	if filter.LocationID != 0 {
		add("location_id=", filter.LocationID)
	}
	if filter.Status != "" {
		add("status=", string(filter.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items`+where+
		` ORDER BY updated_at DESC, id DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListMovements returns the movement history for one item, newest first.
func (r *Repository) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, movement_type, quantity, from_location, to_location, reason, reference, actor_id, created_at
FROM inventory_movements WHERE item_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.Type, &mv.Quantity, &mv.FromLocation, &mv.ToLocation, &mv.Reason, &mv.Reference, &mv.ActorID, &mv.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

// ListAdjustments returns the ledger history for one item, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, itemID int64, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, delta_qty, reason, adjustment_type, related_type, related_id, created_by, created_at
FROM inventory_adjustments WHERE item_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAdjustments(rows)
}

// RecentAdjustments returns ledger entries across all items inside a time window.
func (r *Repository) RecentAdjustments(ctx context.Context, since time.Time, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, delta_qty, reason, adjustment_type, related_type, related_id, created_by, created_at
FROM inventory_adjustments WHERE created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAdjustments(rows)
}

// MaterialOnHandSums returns per-material on-hand totals across all items.
// Used by the reconcile job to heal the stock cache.
func (r *Repository) MaterialOnHandSums(ctx context.Context) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT material_id, COALESCE(SUM(qty_on_hand), 0) FROM inventory_items
WHERE kind='MATERIAL' AND material_id IS NOT NULL GROUP BY material_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := map[int64]int64{}
	for rows.Next() {
		var materialID, sum int64
		if err := rows.Scan(&materialID, &sum); err != nil {
			return nil, err
		}
		sums[materialID] = sum
	}
	return sums, rows.Err()
}

// SumAdjustments computes the ledger total for one item. Used by the
// reconcile job to verify the on-hand snapshot.
func (r *Repository) SumAdjustments(ctx context.Context, itemID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(delta_qty), 0) FROM inventory_adjustments WHERE item_id=$1`, itemID).Scan(&sum)
	return sum, err
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, itemID)
	return scanItem(row)
}

func (r *txRepository) FindItemForUpdate(ctx context.Context, key ItemKey) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE kind=$1 AND material_id IS NOT DISTINCT FROM $2 AND product_id IS NOT DISTINCT FROM $3
AND batch_id IS NOT DISTINCT FROM $4 AND location_id=$5 AND lot_number=$6 FOR UPDATE`,
		string(key.Kind), key.MaterialID, key.ProductID, key.BatchID, key.LocationID, key.LotNumber)
	return scanItem(row)
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_items (kind, material_id, product_id, batch_id, location_id, qty_on_hand, qty_reserved, unit, status, lot_number, expiry_date, unit_cost, source, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()) RETURNING id`,
		string(item.Kind), item.MaterialID, item.ProductID, item.BatchID, item.LocationID,
		item.OnHand, item.Reserved, item.Unit, string(item.Status), item.LotNumber,
		item.ExpiryDate, item.UnitCost, string(item.Source)).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateItemQuantities(ctx context.Context, itemID, onHand, reserved int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET qty_on_hand=$2, qty_reserved=$3, updated_at=NOW() WHERE id=$1`, itemID, onHand, reserved)
	return err
}

func (r *txRepository) UpdateItemStatus(ctx context.Context, itemID int64, status ItemStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET status=$2, updated_at=NOW() WHERE id=$1`, itemID, string(status))
	return err
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_adjustments (item_id, delta_qty, reason, adjustment_type, related_type, related_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		adj.ItemID, adj.Delta, adj.Reason, string(adj.Type), adj.RelatedType, adj.RelatedID, adj.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (item_id, movement_type, quantity, from_location, to_location, reason, reference, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		mv.ItemID, string(mv.Type), mv.Quantity, mv.FromLocation, mv.ToLocation, mv.Reason, mv.Reference, mv.ActorID).Scan(&id)
	return id, err
}

func (r *txRepository) AddMaterialStock(ctx context.Context, materialID, delta int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE raw_materials SET current_stock_qty = current_stock_qty + $2, updated_at=NOW() WHERE id=$1`, materialID, delta)
	return err
}

func (r *txRepository) LocationName(ctx context.Context, locationID int64) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT name FROM locations WHERE id=$1`, locationID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRowNotFound
		}
		return "", err
	}
	return name, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Kind, &item.MaterialID, &item.ProductID, &item.BatchID, &item.LocationID,
		&item.OnHand, &item.Reserved, &item.Unit, &item.Status, &item.LotNumber, &item.ExpiryDate,
		&item.UnitCost, &item.Source, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrRowNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Kind, &item.MaterialID, &item.ProductID, &item.BatchID, &item.LocationID,
			&item.OnHand, &item.Reserved, &item.Unit, &item.Status, &item.LotNumber, &item.ExpiryDate,
			&item.UnitCost, &item.Source, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanAdjustments(rows pgx.Rows) ([]Adjustment, error) {
	adjustments := []Adjustment{}
	for rows.Next() {
		var adj Adjustment
		if err := rows.Scan(&adj.ID, &adj.ItemID, &adj.Delta, &adj.Reason, &adj.Type, &adj.RelatedType, &adj.RelatedID, &adj.CreatedBy, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}
