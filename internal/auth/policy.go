package auth

// IssuancePolicy parameterizes what a successful authentication hands out.
// The three login entry points (primary account, co-located player 2,
// tournament guest) share one verification path and diverge only here.
type IssuancePolicy struct {
	// PersistRefresh creates a refresh record and returns the raw secret.
	PersistRefresh bool
	// MutateOnline flips the principal's online flag on success.
	MutateOnline bool
	// CookieName is the cookie the HTTP layer stores the signed credential
	// in. Empty means no credential artifact is issued at all.
	CookieName string
}

var (
	// PolicyPrimary establishes a full renewable session on the caller's own
	// device.
	PolicyPrimary = IssuancePolicy{PersistRefresh: true, MutateOnline: true, CookieName: "accessToken"}

	// PolicyCoPlayer proves a second participant's identity for the scope of
	// one co-located action. No refresh record, no online-flag change.
	PolicyCoPlayer = IssuancePolicy{CookieName: "player2_token"}

	// PolicyGuest verifies identity and returns only public profile fields.
	PolicyGuest = IssuancePolicy{}
)
