package auth

import "context"

// Store describes persistence operations required by the session core.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages principal records. Create reports ErrDuplicateEmail or
// ErrDuplicateDisplayName when a normalized value collides.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByIdentifier resolves a principal by normalized email or display
	// name in a single lookup.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByOAuthID(ctx context.Context, oauthID string) (*User, error)
	SetTOTP(ctx context.Context, userID, secret string, enabled bool) error
	SetOnline(ctx context.Context, userID string, online bool) error
}

// RefreshTokenStore manages refresh-token records. Raw secrets never reach
// this layer; all lookups are by sha256 digest.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
	CountActiveByUser(ctx context.Context, userID string) (int, error)
}
