package auth

import (
	"crypto/rand"
	"encoding/base32"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer      = "Pong Arena"
	totpSecretBytes = 20
	totpPeriod      = 30
)

// totpOpts pins the TOTP parameters: SHA1, 6 digits, 30-second period and
// zero window drift. A code from the previous or next window is rejected.
var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTOTPSecret returns a fresh base32-encoded shared secret. The secret
// carries no issuer or account binding; ProvisioningURI adds those.
func GenerateTOTPSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// ProvisioningURI renders the otpauth:// URI an authenticator app enrolls
// from. Deterministic for a given label and secret.
func ProvisioningURI(accountLabel, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", totpIssuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", "30")
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + totpIssuer + ":" + accountLabel,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// CurrentTOTPCode computes the six-digit code for the window containing t.
func CurrentTOTPCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpOpts)
}

// VerifyTOTPCode checks the candidate against the window containing t only.
// Malformed secrets and malformed candidates return false rather than an
// error: a caller must not be able to tell a broken secret from a wrong code.
func VerifyTOTPCode(secret, candidate string, t time.Time) bool {
	candidate = strings.TrimSpace(candidate)
	if secret == "" || candidate == "" {
		return false
	}
	ok, err := totp.ValidateCustom(candidate, secret, t, totpOpts)
	if err != nil {
		return false
	}
	return ok
}
