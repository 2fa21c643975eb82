package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"pongarena.org/internal/ids"
)

const (
	defaultAccessTTL    = 15 * time.Minute
	defaultChallengeTTL = 5 * time.Minute
	defaultRefreshTTL   = 24 * time.Hour * 14
)

// Service is the session orchestrator: given credentials or bearer artifacts
// it decides whether to grant access, require a second factor, refresh
// silently or reject. It composes the token codec, the refresh adapter and
// the TOTP engine; all durable state lives in the Store.
type Service struct {
	store Store
	now   func() time.Time

	codec   *Codec
	refresh *refreshAdapter

	accessTTL    time.Duration
	challengeTTL time.Duration
	refreshTTL   time.Duration
	issuer       string
	secret       []byte
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret sets the HS256 signing secret. Required.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: token secret must not be blank")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access credential lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithChallengeTTL configures the two-factor challenge token lifetime.
func WithChallengeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh record lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the orchestrator. A token secret is mandatory.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:        store,
		now:          time.Now,
		accessTTL:    defaultAccessTTL,
		challengeTTL: defaultChallengeTTL,
		refreshTTL:   defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	codec, err := NewCodec(svc.secret, svc.issuer, svc.now)
	if err != nil {
		return nil, err
	}
	svc.codec = codec
	svc.refresh = &refreshAdapter{store: store, ttl: svc.refreshTTL, now: svc.now}
	return svc, nil
}

// Outcome is the result of a successful credential check. Exactly one of the
// two shapes is populated: a challenge (TwoFactorRequired with a challenge
// token) or an issued session (access token, optionally a refresh secret).
type Outcome struct {
	User PublicUser

	TwoFactorRequired bool
	ChallengeToken    string

	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDisplayName produces the uniqueness key for a display name.
func NormalizeDisplayName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register creates a principal from an email, password and display name.
// The returned profile never contains the password hash.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (PublicUser, error) {
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if email == "" || password == "" || displayName == "" {
		return PublicUser{}, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return PublicUser{}, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

// Login resolves the principal by email or display name, checks the password
// and either issues a primary session or a two-factor challenge. Unknown
// identifier, wrong password and blank identifier all surface as
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (Outcome, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Outcome{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Outcome{}, ErrInvalidCredentials
		}
		return Outcome{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Outcome{}, ErrInvalidCredentials
	}
	if user.TwoFactorEnabled {
		return s.issueChallenge(user)
	}
	return s.issueSession(ctx, user, PolicyPrimary)
}

// LoginWithProvider grants entry to a third-party identity: resolved by the
// provider-scoped id, created on first login. Two-factor gating applies the
// same way as for password logins.
func (s *Service) LoginWithProvider(ctx context.Context, identity Identity) (Outcome, error) {
	if strings.TrimSpace(identity.ProviderID) == "" {
		return Outcome{}, ErrInvalidCredentials
	}
	users := s.store.Users(ctx)
	user, err := users.FindByOAuthID(ctx, identity.ProviderID)
	if errors.Is(err, ErrNotFound) {
		user, err = s.createFromIdentity(ctx, identity)
	}
	if err != nil {
		return Outcome{}, err
	}
	if user.TwoFactorEnabled {
		return s.issueChallenge(user)
	}
	return s.issueSession(ctx, user, PolicyPrimary)
}

// CompleteSecondFactor finishes a pending login. The challenge token is the
// whole server-side state of the sequence: verifying it proves the password
// step already succeeded. The issuance policy decides what a success hands
// out (primary session, player-2 credential, or profile only).
func (s *Service) CompleteSecondFactor(ctx context.Context, challengeToken, code string, policy IssuancePolicy) (Outcome, error) {
	claims, err := s.codec.Verify(challengeToken)
	if err != nil || !claims.SecondFactorPending {
		// An access credential presented here is just as invalid as a
		// garbage token.
		return Outcome{}, ErrInvalidSession
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Outcome{}, ErrInvalidSession
		}
		return Outcome{}, err
	}
	if !user.TwoFactorEnabled || user.TOTPSecret == "" {
		return Outcome{}, ErrSecondFactorNotEnabled
	}
	if !VerifyTOTPCode(user.TOTPSecret, code, s.now()) {
		return Outcome{}, ErrInvalidCode
	}
	return s.issueSession(ctx, user, policy)
}

// AuthenticateRequest is the per-request gate. It verifies the access
// credential first and only falls back to the refresh credential once that
// has definitively failed; refreshing while the access token is still valid
// would defeat its short expiry. The returned string is a freshly minted
// access token when silent refresh happened, otherwise empty.
func (s *Service) AuthenticateRequest(ctx context.Context, accessToken, refreshToken string) (PublicUser, string, error) {
	if claims, err := s.codec.Verify(accessToken); err == nil && !claims.SecondFactorPending {
		user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Deleted mid-session: fail closed.
				return PublicUser{}, "", ErrUnauthenticated
			}
			return PublicUser{}, "", err
		}
		return user.Public(), "", nil
	}

	rec, err := s.refresh.verify(ctx, refreshToken)
	if err != nil {
		return PublicUser{}, "", err
	}
	if rec == nil {
		return PublicUser{}, "", ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PublicUser{}, "", ErrUnauthenticated
		}
		return PublicUser{}, "", err
	}
	fresh, err := s.codec.Sign(user.ID, s.accessTTL, false)
	if err != nil {
		return PublicUser{}, "", err
	}
	return user.Public(), fresh, nil
}

// Logout revokes the presented refresh credential and marks its owner
// offline. A stale or unknown secret is silently ignored: the caller must not
// learn anything from the response.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	rec, err := s.refresh.revoke(ctx, refreshToken)
	if err != nil || rec == nil {
		return err
	}
	return s.store.Users(ctx).SetOnline(ctx, rec.UserID, false)
}

// BeginSecondFactorSetup generates a fresh TOTP secret for the principal and
// stores it unconfirmed. The flag only flips once a live code is presented to
// ConfirmSecondFactorSetup, which keeps the invariant that an enabled second
// factor always has a working secret behind it.
func (s *Service) BeginSecondFactorSetup(ctx context.Context, userID string) (secret, uri string, err error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return "", "", err
	}
	secret, err = GenerateTOTPSecret()
	if err != nil {
		return "", "", err
	}
	if err := s.store.Users(ctx).SetTOTP(ctx, user.ID, secret, false); err != nil {
		return "", "", err
	}
	return secret, ProvisioningURI(user.Email, secret), nil
}

// ConfirmSecondFactorSetup enables the second factor after the principal
// proves possession of the secret. Existing refresh records are revoked so
// every live session has passed through the new gate.
func (s *Service) ConfirmSecondFactorSetup(ctx context.Context, userID, code string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return ErrSecondFactorNotEnabled
	}
	if !VerifyTOTPCode(user.TOTPSecret, code, s.now()) {
		return ErrInvalidCode
	}
	if err := s.store.Users(ctx).SetTOTP(ctx, user.ID, user.TOTPSecret, true); err != nil {
		return err
	}
	return s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, user.ID)
}

// DisableSecondFactor turns the second factor off and clears the secret.
func (s *Service) DisableSecondFactor(ctx context.Context, userID string) error {
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return err
	}
	return s.store.Users(ctx).SetTOTP(ctx, userID, "", false)
}

func (s *Service) issueChallenge(user *User) (Outcome, error) {
	token, err := s.codec.Sign(user.ID, s.challengeTTL, true)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		User:              user.Public(),
		TwoFactorRequired: true,
		ChallengeToken:    token,
	}, nil
}

func (s *Service) issueSession(ctx context.Context, user *User, policy IssuancePolicy) (Outcome, error) {
	out := Outcome{User: user.Public()}

	if policy.CookieName != "" {
		token, err := s.codec.Sign(user.ID, s.accessTTL, false)
		if err != nil {
			return Outcome{}, err
		}
		out.AccessToken = token
		out.AccessExpiresAt = s.now().UTC().Add(s.accessTTL)
	}
	if policy.PersistRefresh {
		raw, rec, err := s.refresh.create(ctx, user.ID)
		if err != nil {
			return Outcome{}, err
		}
		out.RefreshToken = raw
		out.RefreshExpiresAt = rec.ExpiresAt
	}
	if policy.MutateOnline && !user.IsOnline {
		if err := s.store.Users(ctx).SetOnline(ctx, user.ID, true); err != nil {
			return Outcome{}, err
		}
		out.User.IsOnline = true
	}
	return out, nil
}

func (s *Service) createFromIdentity(ctx context.Context, identity Identity) (*User, error) {
	email := NormalizeEmail(identity.Email)
	displayName := strings.TrimSpace(identity.DisplayName)
	if email == "" {
		return nil, ErrInvalidInput
	}
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  displayName,
		OAuthID:      identity.ProviderID,
		PasswordHash: "",
	}
	err := s.store.Users(ctx).Create(ctx, user)
	if errors.Is(err, ErrDuplicateDisplayName) {
		// Another account owns the name; suffix with a short id and retry
		// once.
		user.DisplayName = displayName + "-" + strings.ToLower(user.ID[len(user.ID)-6:])
		err = s.store.Users(ctx).Create(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
