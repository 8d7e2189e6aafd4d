package session

import "context"

type currentSessionKey struct{}

// NewContext carries the authenticated session to handlers behind the session gate.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, currentSessionKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(currentSessionKey{}).(Session)
	return s, ok
}
