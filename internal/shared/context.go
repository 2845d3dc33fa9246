package shared

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies the tenant and user behind a request. Identity resolution
// happens upstream; handlers trust these values.
type Actor struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
