package auth

import "errors"

var (
	ErrNotFound             = errors.New("auth: not found")
	ErrDuplicateEmail       = errors.New("auth: email already in use")
	ErrDuplicateDisplayName = errors.New("auth: display name already in use")
	ErrInvalidInput         = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers unknown identifier, wrong password and
	// missing identifier alike; responses must not reveal which one failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrInvalidToken           = errors.New("auth: invalid token")
	ErrInvalidSession         = errors.New("auth: invalid or expired two-factor session")
	ErrSecondFactorNotEnabled = errors.New("auth: second factor is not enabled")
	ErrInvalidCode            = errors.New("auth: invalid two-factor code")
	ErrUnauthenticated        = errors.New("auth: unauthenticated")
)
