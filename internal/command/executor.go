package command

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/kiln-ops/kiln/internal/inventory"
	"github.com/kiln-ops/kiln/internal/production"
	"github.com/kiln-ops/kiln/internal/receiving"
	"github.com/kiln-ops/kiln/internal/shared"
)

// ProductionPort is the slice of the production service commands dispatch to.
type ProductionPort interface {
	IssueMaterials(ctx context.Context, orderID int64, requests []production.IssueRequest, actorID int64) ([]production.IssueResult, error)
	CompleteBatch(ctx context.Context, params production.CompleteBatchParams) (production.Batch, error)
}

// InventoryPort is the slice of the inventory service commands dispatch to.
type InventoryPort interface {
	Consume(ctx context.Context, params inventory.ConsumeParams) (inventory.ConsumptionResult, error)
	ApplyAdjustment(ctx context.Context, params inventory.ApplyAdjustmentParams) (inventory.Adjustment, int64, error)
}

// AdjustResult pairs the posted ledger entry with the item's new on-hand.
type AdjustResult struct {
	Adjustment inventory.Adjustment `json:"adjustment"`
	NewOnHand  int64                `json:"newOnHand"`
}

// ReceivingPort is the slice of the receiving service commands dispatch to.
type ReceivingPort interface {
	ReceiveAgainstPO(ctx context.Context, params receiving.ReceiveParams) (inventory.Item, error)
}

// Executor validates a command envelope and dispatches it.
type Executor struct {
	production ProductionPort
	stock      InventoryPort
	receiving  ReceivingPort
	validate   *validator.Validate
}

// NewExecutor builds Executor.
func NewExecutor(prod ProductionPort, stock InventoryPort, recv ReceivingPort) *Executor {
	return &Executor{production: prod, stock: stock, receiving: recv, validate: validator.New()}
}

// Execute runs one command and returns the kind-specific result.
func (e *Executor) Execute(ctx context.Context, cmd Command) (any, error) {
	if cmd.ActorID == 0 {
		return nil, shared.Errorf(shared.ErrInvalidInput, "command: actor required")
	}
	switch cmd.Kind {
	case KindIssueMaterials:
		var args IssueMaterialsArgs
		if err := e.decodeArgs(cmd.Args, &args); err != nil {
			return nil, err
		}
		requests := make([]production.IssueRequest, 0, len(args.Materials))
		for _, m := range args.Materials {
			requests = append(requests, production.IssueRequest{MaterialID: m.MaterialID, Quantity: m.Quantity})
		}
		return e.production.IssueMaterials(ctx, args.OrderID, requests, cmd.ActorID)

	case KindConsume:
		var args ConsumeArgs
		if err := e.decodeArgs(cmd.Args, &args); err != nil {
			return nil, err
		}
		return e.stock.Consume(ctx, inventory.ConsumeParams{
			MaterialID: args.MaterialID,
			Quantity:   args.Quantity,
			Strict:     args.Strict,
			Reason:     args.Reason,
			ActorID:    cmd.ActorID,
		})

	case KindAdjust:
		var args AdjustArgs
		if err := e.decodeArgs(cmd.Args, &args); err != nil {
			return nil, err
		}
		adj, newOnHand, err := e.stock.ApplyAdjustment(ctx, inventory.ApplyAdjustmentParams{
			ItemID:  args.ItemID,
			Delta:   args.Delta,
			Type:    inventory.AdjustmentManualCorrection,
			Reason:  args.Reason,
			ActorID: cmd.ActorID,
		})
		if err != nil {
			return nil, err
		}
		return AdjustResult{Adjustment: adj, NewOnHand: newOnHand}, nil

	case KindCompleteBatch:
		var args CompleteBatchArgs
		if err := e.decodeArgs(cmd.Args, &args); err != nil {
			return nil, err
		}
		return e.production.CompleteBatch(ctx, production.CompleteBatchParams{
			BatchID:    args.BatchID,
			ActualQty:  args.ActualQty,
			LocationID: args.LocationID,
			QCRequired: args.QCRequired,
			LotNumber:  args.LotNumber,
			ActorID:    cmd.ActorID,
		})

	case KindReceive:
		var args ReceiveArgs
		if err := e.decodeArgs(cmd.Args, &args); err != nil {
			return nil, err
		}
		return e.receiving.ReceiveAgainstPO(ctx, receiving.ReceiveParams{
			PORef:      args.PORef,
			MaterialID: args.MaterialID,
			Quantity:   args.Quantity,
			LotNumber:  args.LotNumber,
			ExpiryDate: args.ExpiryDate,
			LocationID: args.LocationID,
			ActorID:    cmd.ActorID,
		})

	default:
		return nil, errUnknownKind(cmd.Kind)
	}
}

func (e *Executor) decodeArgs(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return shared.Errorf(shared.ErrInvalidInput, "command: args required")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return shared.Errorf(shared.ErrInvalidInput, "command: malformed args: %v", err)
	}
	if err := e.validate.Struct(target); err != nil {
		return shared.Errorf(shared.ErrInvalidInput, "command: validation failed: %v", err)
	}
	return nil
}
