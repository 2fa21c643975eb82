package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the verified contents of a signed token. SecondFactorPending
// marks a challenge token: the password step succeeded but the TOTP code has
// not been presented yet. The codec only reports the claim; the Service
// decides whether a pending token is acceptable for a given operation.
type Claims struct {
	SecondFactorPending bool `json:"2fa_pending,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the compact signed artifacts used by the session
// protocol: access credentials, player-2 credentials and two-factor challenge
// tokens. All are HS256 JWTs over a shared secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec constructs a Codec. The secret must be non-empty.
func NewCodec(secret []byte, issuer string, now func() time.Time) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, issuer: strings.TrimSpace(issuer), now: now}, nil
}

// Sign issues a token for the subject. pending=true produces a challenge
// token; pending=false an access-shaped credential.
func (c *Codec) Sign(subject string, ttl time.Duration, pending bool) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}

	now := c.now().UTC()
	claims := Claims{
		SecondFactorPending: pending,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the signature, issuer and timestamps. Every failure mode maps
// to ErrInvalidToken: callers branch on the returned error value instead of
// inspecting parse internals.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := c.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) validateClaims(claims *Claims) error {
	if c.issuer != "" && claims.Issuer != c.issuer {
		return errors.New("unexpected issuer")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := c.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
