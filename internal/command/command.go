// Package command executes structured operations commands. The upstream
// natural-language layer resolves free text into one of a closed set of
// command kinds; each kind carries its own typed argument record and
// dispatches to the same public services every other caller uses. There is
// no privileged path.
package command

import (
	"encoding/json"
	"time"

	"github.com/kiln-ops/kiln/internal/shared"
)

// Kind enumerates the closed set of executable commands.
type Kind string

const (
	KindIssueMaterials Kind = "ISSUE_MATERIALS"
	KindConsume        Kind = "CONSUME"
	KindAdjust         Kind = "ADJUST"
	KindCompleteBatch  Kind = "COMPLETE_BATCH"
	KindReceive        Kind = "RECEIVE"
)

// Command is the wire envelope: a kind tag plus that kind's argument record.
type Command struct {
	Kind    Kind            `json:"kind"`
	ActorID int64           `json:"actorId"`
	Args    json.RawMessage `json:"args"`
}

// IssueMaterialsArgs draws materials for a production order.
type IssueMaterialsArgs struct {
	OrderID   int64 `json:"orderId" validate:"required"`
	Materials []struct {
		MaterialID int64 `json:"materialId" validate:"required"`
		Quantity   int64 `json:"quantity" validate:"required,gt=0"`
	} `json:"materials" validate:"required,min=1,dive"`
}

// ConsumeArgs draws material stock outside an order. Short stock yields a
// partial result unless Strict asks for an up-front rejection.
type ConsumeArgs struct {
	MaterialID int64  `json:"materialId" validate:"required"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Strict     bool   `json:"strict"`
	Reason     string `json:"reason" validate:"required"`
}

// AdjustArgs posts a manual correction against one item.
type AdjustArgs struct {
	ItemID int64  `json:"itemId" validate:"required"`
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// CompleteBatchArgs settles a production batch.
type CompleteBatchArgs struct {
	BatchID    int64  `json:"batchId" validate:"required"`
	ActualQty  int64  `json:"actualQty" validate:"gte=0"`
	LocationID int64  `json:"locationId" validate:"required"`
	QCRequired bool   `json:"qcRequired"`
	LotNumber  string `json:"lotNumber"`
}

// ReceiveArgs books a purchase-order delivery line.
type ReceiveArgs struct {
	PORef      string     `json:"poRef" validate:"required"`
	MaterialID int64      `json:"materialId" validate:"required"`
	Quantity   int64      `json:"quantity" validate:"required,gt=0"`
	LotNumber  string     `json:"lotNumber"`
	ExpiryDate *time.Time `json:"expiryDate"`
	LocationID *int64     `json:"locationId"`
}

func errUnknownKind(kind Kind) error {
	return shared.Errorf(shared.ErrInvalidInput, "command: unknown kind %q", kind)
}
