package auth

import "context"

type profileIDKey struct{}

func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileIDKey{}, profileID)
}

func ProfileIDFromContext(ctx context.Context) (string, bool) {
	profileID, ok := ctx.Value(profileIDKey{}).(string)
	return profileID, ok && profileID != ""
}
