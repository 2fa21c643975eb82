package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal PublicUser) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (PublicUser, bool) {
	if ctx == nil {
		return PublicUser{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*PublicUser)
	if !ok || v == nil {
		return PublicUser{}, false
	}
	return *v, true
}

// UserIDFromContext returns the authenticated principal's id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.ID == "" {
		return "", false
	}
	return principal.ID, true
}
