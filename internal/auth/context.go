package auth

import "context"

type principalContextKey struct{}

// Principal is an authenticated address with its resolved access.
type Principal struct {
	Address   string
	AccountID string
	Access    Access
}

// HasPermission reports whether the principal holds perm.
func (p Principal) HasPermission(perm Permission) bool {
	return p.Access.Has(perm)
}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
