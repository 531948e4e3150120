package authz

import "context"

type identityContextKey struct{}

// ContextWithIdentity stores the authorized identity in context.
func ContextWithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the authorized identity, nil when the
// request was allowed without one (public routes).
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(identityContextKey{}).(*Identity)
	return ident
}
