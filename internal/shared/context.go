package shared

import "context"

// Principal describes the authenticated actor attached to a request. Every
// ledger-affecting write carries one; writes without a principal are rejected.
type Principal struct {
	ID   int64
	Name string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the acting principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the acting principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.ID != 0
}
