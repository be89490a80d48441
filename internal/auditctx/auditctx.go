// Package auditctx carries the request actor through context.Context so that service layers can
// attribute security log entries without depending on the HTTP stack.
package auditctx

import "context"

// Actor captures contextual information about the caller that initiated a request. UserID is empty
// for anonymous viewers.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// Authenticated reports whether the actor carries a signed-in identity.
func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

type actorContextKey struct{}

// WithActor injects actor metadata into the supplied context, returning a derived context that
// callers can pass down into service layers for security logging.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), actorContextKey{}, actor)
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
