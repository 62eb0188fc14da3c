package appstore

import "context"

type contextKey struct{}

// ContextWithAPIKey returns a context carrying the caller's upstream API key.
func ContextWithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}

// APIKeyFromContext returns the upstream API key stored in ctx, if any.
func APIKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(contextKey{}).(string); ok {
		return key
	}
	return ""
}
