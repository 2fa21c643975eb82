package auth

import "time"

// User is the principal record persisted by the store. Email and DisplayName
// are unique after normalization (lower-cased, trimmed).
type User struct {
	ID               string
	Email            string
	DisplayName      string
	PasswordHash     string
	OAuthID          string
	TOTPSecret       string
	TwoFactorEnabled bool
	IsOnline         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Public projects the user into its externally visible shape. The password
// hash and TOTP secret never leave the auth package.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		TwoFactorEnabled: u.TwoFactorEnabled,
		IsOnline:         u.IsOnline,
	}
}

// PublicUser is the profile shape returned to clients.
type PublicUser struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	DisplayName      string `json:"display_name"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	IsOnline         bool   `json:"is_online"`
}

// RefreshToken is the persisted half of a refresh credential. Only the sha256
// digest of the raw secret is stored; the raw value exists transiently in the
// login response and the client's cookie.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}
