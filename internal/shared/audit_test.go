package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditRecordRequiresExplicitActor(t *testing.T) {
	logger := NewAuditLogger(nil)

	err := logger.Record(context.Background(), AuditLog{
		Action: "inventory.adjust", Entity: "inventory_item", EntityID: "1",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuditRecordAcceptsSystemActorForValidation(t *testing.T) {
	logger := NewAuditLogger(nil)

	// SystemActorID passes the actor guard; the missing entity fields still fail.
	err := logger.Record(context.Background(), AuditLog{
		ActorID: SystemActorID, Action: "jobs.low_stock_scan",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuditRecordRequiresActionEntityAndID(t *testing.T) {
	logger := NewAuditLogger(nil)

	err := logger.Record(context.Background(), AuditLog{
		ActorID: 7, Entity: "inventory_item", EntityID: "1",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuditRecordNilLoggerFails(t *testing.T) {
	var logger *AuditLogger

	err := logger.Record(context.Background(), AuditLog{
		ActorID: 7, Action: "inventory.adjust", Entity: "inventory_item", EntityID: "1",
	})
	require.ErrorIs(t, err, ErrInvalidOperation)
}
