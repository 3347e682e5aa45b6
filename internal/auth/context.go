package auth

import "context"

type principalKey struct{}

// ContextWithPrincipal returns a context carrying the authenticated
// caller. HTTP guards attach it after verifying the bearer token so
// handlers and audit events can attribute the action.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext reports the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
