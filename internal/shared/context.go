package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user ID in context. Mutating operations
// still take the actor explicitly; the context copy exists for request-scoped
// logging and audit enrichment only.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user ID, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
