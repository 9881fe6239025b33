package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, reference, product_id, quantity_to_make, batch_size, status, blocked_reason, archived_at, archive_reason, dismissed_at, requirements_snapshot, created_by, created_at, updated_at`

const batchColumns = `id, order_id, code, planned_qty, actual_qty, status, qc_status, qc_notes, expected_yield, actual_yield, loss_qty, inventory_item_id, created_at, updated_at`

// ErrRowNotFound indicates a missing row at the repository level.
var ErrRowNotFound = errors.New("production: row not found")

// Repository persists production orders and batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus, blockedReason string) error
	ArchiveOrder(ctx context.Context, orderID int64, reason string) error
	DismissOrder(ctx context.Context, orderID int64) error
	UpdateOrderSnapshot(ctx context.Context, orderID int64, snapshot []byte) error
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) error
	InsertOrderMaterial(ctx context.Context, m OrderMaterial) (int64, error)
	FindOrderMaterialForUpdate(ctx context.Context, orderID, materialID int64) (OrderMaterial, error)
	AddIssuedQty(ctx context.Context, orderMaterialID, delta int64) error
	ListBatchesByOrder(ctx context.Context, orderID int64) ([]Batch, error)
	ListOrderMaterials(ctx context.Context, orderID int64) ([]OrderMaterial, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
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

// InsertOrder stores a new order and returns its ID.
func (r *Repository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO production_orders (reference, product_id, quantity_to_make, batch_size, status, requirements_snapshot, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		o.Reference, o.ProductID, o.QuantityToMake, o.BatchSize, string(o.Status), o.Snapshot, o.CreatedBy).Scan(&id)
	return id, err
}

// GetOrder loads one order without locking.
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1`, orderID)
	return scanOrder(row)
}

// ListOrders returns orders for board views. Archived and dismissed rows are
// filtered out unless includeHidden is set.
func (r *Repository) ListOrders(ctx context.Context, includeHidden bool, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + orderColumns + ` FROM production_orders`
	if !includeHidden {
		query += ` WHERE archived_at IS NULL AND dismissed_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetBatch loads one batch without locking.
func (r *Repository) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id=$1`, batchID)
	return scanBatch(row)
}

// ListBatchesByOrder returns all batches of one order.
func (r *Repository) ListBatchesByOrder(ctx context.Context, orderID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// ListOrderMaterials returns the requirement rows of one order.
func (r *Repository) ListOrderMaterials(ctx context.Context, orderID int64) ([]OrderMaterial, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, material_id, required_qty, issued_qty FROM production_order_materials WHERE order_id=$1 ORDER BY material_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrderMaterials(rows)
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1 FOR UPDATE`, orderID)
	return scanOrder(row)
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus, blockedReason string) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_orders SET status=$2, blocked_reason=$3, updated_at=NOW() WHERE id=$1`,
		orderID, string(status), blockedReason)
	return err
}

func (r *txRepository) ArchiveOrder(ctx context.Context, orderID int64, reason string) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_orders SET archived_at=NOW(), archive_reason=$2, updated_at=NOW() WHERE id=$1`, orderID, reason)
	return err
}

func (r *txRepository) DismissOrder(ctx context.Context, orderID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_orders SET dismissed_at=NOW(), updated_at=NOW() WHERE id=$1`, orderID)
	return err
}

func (r *txRepository) UpdateOrderSnapshot(ctx context.Context, orderID int64, snapshot []byte) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_orders SET requirements_snapshot=$2, updated_at=NOW() WHERE id=$1`, orderID, snapshot)
	return err
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_batches (order_id, code, planned_qty, actual_qty, status, qc_status, qc_notes, expected_yield, actual_yield, loss_qty, inventory_item_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW()) RETURNING id`,
		batch.OrderID, batch.Code, batch.PlannedQty, batch.ActualQty, string(batch.Status), string(batch.QCStatus),
		batch.QCNotes, batch.ExpectedYield, batch.ActualYield, batch.LossQty, batch.InventoryItemID).Scan(&id)
	return id, err
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id=$1 FOR UPDATE`, batchID)
	return scanBatch(row)
}

func (r *txRepository) UpdateBatch(ctx context.Context, batch Batch) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_batches SET actual_qty=$2, status=$3, qc_status=$4, qc_notes=$5, actual_yield=$6, loss_qty=$7, inventory_item_id=$8, updated_at=NOW() WHERE id=$1`,
		batch.ID, batch.ActualQty, string(batch.Status), string(batch.QCStatus), batch.QCNotes,
		batch.ActualYield, batch.LossQty, batch.InventoryItemID)
	return err
}

func (r *txRepository) InsertOrderMaterial(ctx context.Context, m OrderMaterial) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_order_materials (order_id, material_id, required_qty, issued_qty)
VALUES ($1,$2,$3,$4) RETURNING id`, m.OrderID, m.MaterialID, m.RequiredQty, m.IssuedQty).Scan(&id)
	return id, err
}

func (r *txRepository) FindOrderMaterialForUpdate(ctx context.Context, orderID, materialID int64) (OrderMaterial, error) {
	var m OrderMaterial
	err := r.tx.QueryRow(ctx, `SELECT id, order_id, material_id, required_qty, issued_qty FROM production_order_materials
WHERE order_id=$1 AND material_id=$2 FOR UPDATE`, orderID, materialID).
		Scan(&m.ID, &m.OrderID, &m.MaterialID, &m.RequiredQty, &m.IssuedQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderMaterial{}, ErrRowNotFound
		}
		return OrderMaterial{}, err
	}
	return m, nil
}

func (r *txRepository) AddIssuedQty(ctx context.Context, orderMaterialID, delta int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_order_materials SET issued_qty = issued_qty + $2 WHERE id=$1`, orderMaterialID, delta)
	return err
}

func (r *txRepository) ListBatchesByOrder(ctx context.Context, orderID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) ListOrderMaterials(ctx context.Context, orderID int64) ([]OrderMaterial, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, order_id, material_id, required_qty, issued_qty FROM production_order_materials WHERE order_id=$1 ORDER BY material_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrderMaterials(rows)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Reference, &o.ProductID, &o.QuantityToMake, &o.BatchSize, &o.Status,
		&o.BlockedReason, &o.ArchivedAt, &o.ArchiveReason, &o.DismissedAt, &o.Snapshot,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrRowNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.OrderID, &b.Code, &b.PlannedQty, &b.ActualQty, &b.Status, &b.QCStatus,
		&b.QCNotes, &b.ExpectedYield, &b.ActualYield, &b.LossQty, &b.InventoryItemID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrRowNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	batches := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanOrderMaterials(rows pgx.Rows) ([]OrderMaterial, error) {
	materials := []OrderMaterial{}
	for rows.Next() {
		var m OrderMaterial
		if err := rows.Scan(&m.ID, &m.OrderID, &m.MaterialID, &m.RequiredQty, &m.IssuedQty); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}
