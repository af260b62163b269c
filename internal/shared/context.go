package shared

import (
	"context"

	"github.com/google/uuid"
)

type actorContextKey struct{}

// ContextWithActor stores the acting collaborator in context.
func ContextWithActor(ctx context.Context, actor uuid.UUID) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting collaborator from context.
func ActorFromContext(ctx context.Context) uuid.NullUUID {
	actor, ok := ctx.Value(actorContextKey{}).(uuid.UUID)
	if !ok || actor == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: actor, Valid: true}
}
