package events

import "context"

type runIDKey struct{}

type userKey struct{}

// ContextWithRunID returns a new context carrying the skill run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext extracts the run ID from the context, or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithUser returns a new context carrying the acting ERP user.
// An empty user leaves ctx unchanged.
func ContextWithUser(ctx context.Context, user string) context.Context {
	if user == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext extracts the acting user from the context, or "" if absent.
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok {
		return u
	}
	return ""
}
