package auth

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithSessionContext stores the resolved session id
func WithSessionContext(r context.Context, sessionID string) context.Context {
	return context.WithValue(r, sessionCtxKey, sessionID)
}

// SessionFromContext returns the session id stored by WithSessionContext
func SessionFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(string)
	return raw, ok && raw != ""
}
