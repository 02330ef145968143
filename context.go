package inspectflow

import (
	"context"
	"strings"
)

// Actor is an authenticated identity paired with one workflow role
type Actor struct {
	ID   string `json:"actor_id"`
	Role Role   `json:"role"`
}

// NewActor validates the role designation and returns an Actor
func NewActor(id string, role string) (Actor, error) {
	if strings.TrimSpace(id) == "" {
		return Actor{}, NewInvalidInputError("actor id is required")
	}
	r, err := ParseRole(role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: id, Role: r}, nil
}

// Validate checks that the actor has an id and an enumerated role
func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return NewInvalidInputError("actor id is required")
	}
	if !a.Role.Valid() {
		return NewInvalidInputError("unknown role " + string(a.Role))
	}
	return nil
}

type actorKey struct{}

// WithActor returns a context carrying the authenticated actor. The HTTP
// layer sets it after authentication.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
