package auth

import "context"

// Identity is what a third-party provider asserts about a user after a
// successful authorization-code exchange.
type Identity struct {
	ProviderID  string
	Email       string
	DisplayName string
}

// IdentityProvider exchanges an authorization code for a verified identity.
// The outbound HTTP conversation with the provider lives behind this
// interface; the session core only consumes the result.
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (Identity, error)
}
