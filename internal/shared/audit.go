package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SystemActorID attributes audit entries written by background jobs. Every
// other entry carries the explicit ID of whoever triggered the mutation;
// there is no ambient session user to fall back on.
const SystemActorID int64 = -1

// AuditLog is one audit_logs row: who did what to which entity, with
// free-form metadata for the per-action details.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends to the audit trail. Services call Record after the
// owning transaction commits and discard the result; a lost audit row must
// never roll back a committed stock change.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger builds AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists one entry. Entries without an actor are rejected; jobs
// record under SystemActorID instead of leaving the field zero.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return Errorf(ErrInvalidOperation, "shared: audit logger not configured")
	}
	if log.ActorID == 0 {
		return Errorf(ErrInvalidInput, "shared: audit entry for %q needs an actor", log.Action)
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return Errorf(ErrInvalidInput, "shared: audit entry needs action, entity and entity id")
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, meta, log.At)
	return err
}
