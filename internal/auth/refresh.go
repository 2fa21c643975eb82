package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"pongarena.org/internal/ids"
)

// refreshAdapter mints and verifies opaque refresh credentials. Raw values
// carry 256 bits of entropy and are handed out exactly once; only the sha256
// digest is persisted.
type refreshAdapter struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// HashRefreshToken derives the storage key for a raw refresh secret.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// create persists a new record and returns the raw secret with it.
func (a *refreshAdapter) create(ctx context.Context, userID string) (string, *RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: HashRefreshToken(raw),
		ExpiresAt: a.now().Add(a.ttl),
	}
	if err := a.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return raw, rec, nil
}

// verify resolves a raw secret to its live record. Absent, revoked and
// expired records all come back as nil: callers must not be able to
// distinguish those cases.
func (a *refreshAdapter) verify(ctx context.Context, raw string) (*RefreshToken, error) {
	if raw == "" {
		return nil, nil
	}
	rec, err := a.store.RefreshTokens(ctx).FindByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if rec.Revoked || a.now().After(rec.ExpiresAt) {
		return nil, nil
	}
	return rec, nil
}

// revoke marks the matching record revoked. Revoking an unknown or already
// revoked secret is a no-op; the returned record (if any) lets the caller
// update the owning principal.
func (a *refreshAdapter) revoke(ctx context.Context, raw string) (*RefreshToken, error) {
	if raw == "" {
		return nil, nil
	}
	tokens := a.store.RefreshTokens(ctx)
	rec, err := tokens.FindByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := tokens.MarkRevoked(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}
