package auth

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and by the server when no
// database DSN is configured. Guarded by a single mutex; fine for one
// process, not a durability story.
type MemStore struct {
	mu     sync.RWMutex
	users  map[string]*User         // by id
	tokens map[string]*RefreshToken // by id
	now    func() time.Time
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:  make(map[string]*User),
		tokens: make(map[string]*RefreshToken),
		now:    time.Now,
	}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) Users(context.Context) UserStore                 { return (*memUserStore)(m) }
func (m *MemStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokenStore)(m) }

type memUserStore MemStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := NormalizeEmail(u.Email)
	name := NormalizeDisplayName(u.DisplayName)
	for _, existing := range s.users {
		if NormalizeEmail(existing.Email) == email {
			return ErrDuplicateEmail
		}
		if NormalizeDisplayName(existing.DisplayName) == name {
			return ErrDuplicateDisplayName
		}
	}
	now := s.now().UTC()
	cp := *u
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.users[u.ID] = &cp
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = NormalizeEmail(email)
	for _, u := range s.users {
		if NormalizeEmail(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := NormalizeEmail(identifier)
	for _, u := range s.users {
		if NormalizeEmail(u.Email) == key || NormalizeDisplayName(u.DisplayName) == NormalizeDisplayName(identifier) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) FindByOAuthID(_ context.Context, oauthID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.OAuthID != "" && u.OAuthID == oauthID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) SetTOTP(_ context.Context, userID, secret string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.TOTPSecret = secret
	u.TwoFactorEnabled = enabled
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memUserStore) SetOnline(_ context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsOnline = online
	u.UpdatedAt = s.now().UTC()
	return nil
}

type memTokenStore MemStore

func (s *memTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *memTokenStore) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.tokens {
		if tok.TokenHash == hash {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memTokenStore) MarkRevoked(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok, ok := s.tokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (s *memTokenStore) MarkRevokedByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (s *memTokenStore) CountActiveByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	count := 0
	for _, tok := range s.tokens {
		if tok.UserID == userID && !tok.Revoked && now.Before(tok.ExpiresAt) {
			count++
		}
	}
	return count, nil
}
