package production

import (
	"time"

	"github.com/kiln-ops/kiln/internal/shared"
)

// OrderStatus is the production order state machine. Archived and dismissed
// are bookkeeping flags on the order row, never states.
type OrderStatus string

const (
	OrderPlanned    OrderStatus = "PLANNED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderBlocked    OrderStatus = "BLOCKED"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// BatchStatus is the batch state machine.
type BatchStatus string

const (
	BatchPlanned    BatchStatus = "PLANNED"
	BatchInProgress BatchStatus = "IN_PROGRESS"
	BatchQCHold     BatchStatus = "QC_HOLD"
	BatchReleased   BatchStatus = "RELEASED"
	BatchExhausted  BatchStatus = "EXHAUSTED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// QCStatus tracks the quality decision for a batch.
type QCStatus string

const (
	QCNotRequired QCStatus = "NOT_REQUIRED"
	QCPending     QCStatus = "PENDING"
	QCHold        QCStatus = "HOLD"
	QCPassed      QCStatus = "PASSED"
	QCFailed      QCStatus = "FAILED"
)

// Order is one production order for a product. The requirements snapshot is a
// read cache recomputed and overwritten as a whole; the normalized
// OrderMaterial rows are the source of truth.
type Order struct {
	ID             int64
	Reference      string
	ProductID      int64
	QuantityToMake int64
	BatchSize      int64
	Status         OrderStatus
	BlockedReason  string
	ArchivedAt     *time.Time
	ArchiveReason  string
	DismissedAt    *time.Time
	Snapshot       []byte
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderMaterial is one requirement row: how much of a material the order
// needs and how much has actually been issued against it.
type OrderMaterial struct {
	ID          int64
	OrderID     int64
	MaterialID  int64
	RequiredQty int64
	IssuedQty   int64
}

// RequirementSnapshot is the JSON shape cached on the order row. Shortage is
// computed at snapshot time and goes stale by design.
type RequirementSnapshot struct {
	MaterialID  int64 `json:"materialId"`
	RequiredQty int64 `json:"requiredQty"`
	IssuedQty   int64 `json:"issuedQty"`
	Shortage    int64 `json:"shortage"`
}

// Batch is one production run sized out of an order.
type Batch struct {
	ID              int64
	OrderID         int64
	Code            string
	PlannedQty      int64
	ActualQty       int64
	Status          BatchStatus
	QCStatus        QCStatus
	QCNotes         string
	ExpectedYield   int64
	ActualYield     int64
	LossQty         int64
	InventoryItemID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IssueRequest asks for one material to be drawn for an order.
type IssueRequest struct {
	MaterialID int64
	Quantity   int64
}

// IssueResult reports what was actually consumed for one material. Consumed
// may be under Requested when stock ran short; shortages stay visible.
type IssueResult struct {
	MaterialID int64
	Requested  int64
	Consumed   int64
}

func (b Batch) terminal() bool {
	switch b.Status {
	case BatchReleased, BatchExhausted, BatchCancelled:
		return true
	}
	return false
}

func errOrderNotFound(orderID int64) error {
	return shared.Errorf(shared.ErrNotFound, "production: order %d", orderID)
}

func errBatchNotFound(batchID int64) error {
	return shared.Errorf(shared.ErrNotFound, "production: batch %d", batchID)
}
