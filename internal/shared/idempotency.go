package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict marks a key that was already processed. Callers
// treat it as "this delivery already happened", not as a failure.
var ErrIdempotencyConflict = errors.New("already processed")

// pgUniqueViolation is the Postgres code for a unique constraint hit.
const pgUniqueViolation = "23505"

// IdempotencyStore tracks processed request keys per module so retried
// deliveries post stock exactly once. Callers claim the key before doing the
// work and Delete it again if the work fails, letting a retry through.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore builds IdempotencyStore.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module. A second claim of the same key
// returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return Errorf(ErrInvalidOperation, "shared: idempotency store not configured")
	}
	if key == "" || module == "" {
		return Errorf(ErrInvalidInput, "shared: idempotency key and module required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		key, module, time.Now())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return Errorf(ErrIdempotencyConflict, "shared: %s already processed key %q", module, key)
	}
	return err
}

// Delete releases a claimed key after the work it guarded failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return Errorf(ErrInvalidInput, "shared: idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// Cleanup drops keys older than the retention window. The worker runs this
// on a cron so the table stays bounded.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-olderThan))
	return err
}
