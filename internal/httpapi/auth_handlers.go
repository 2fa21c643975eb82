package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pongarena.org/internal/audit"
	"pongarena.org/internal/auth"
	"pongarena.org/internal/obs"
)

const (
	cookieAccess  = "accessToken"
	cookieRefresh = "refreshToken"

	accessCookieTTL  = 15 * time.Minute
	refreshCookieTTL = 14 * 24 * time.Hour
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginResponse struct {
	User              auth.PublicUser `json:"user"`
	TwoFactorRequired bool            `json:"two_factor_required,omitempty"`
	ChallengeToken    string          `json:"challenge_token,omitempty"`
}

type secondFactorRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// handleAuthError translates the session core's error taxonomy into the HTTP
// status contract. Store failures surface as a generic 500: internals never
// leak into responses.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, r, http.StatusBadRequest, "email already in use")
	case errors.Is(err, auth.ErrDuplicateDisplayName):
		writeError(w, r, http.StatusBadRequest, "display name already in use")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidSession):
		writeError(w, r, http.StatusUnauthorized, "invalid or expired two-factor session")
	case errors.Is(err, auth.ErrSecondFactorNotEnabled):
		writeError(w, r, http.StatusUnauthorized, "second factor is not enabled")
	case errors.Is(err, auth.ErrInvalidCode):
		writeError(w, r, http.StatusUnauthorized, "invalid two-factor code")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, r, http.StatusBadRequest, "email, password and display_name are required")
		return
	}

	user, err := a.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identifier := strings.TrimSpace(req.Email)
	if identifier == "" {
		identifier = strings.TrimSpace(req.DisplayName)
	}
	if identifier == "" {
		writeError(w, r, http.StatusBadRequest, "email or display_name is required")
		return
	}

	out, err := a.auth.Login(r.Context(), identifier, req.Password)
	if err != nil {
		obs.CountLogin("rejected")
		handleAuthError(w, r, err)
		return
	}
	a.respondLogin(w, r, out, auth.PolicyPrimary)
}

func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusNotImplemented, "third-party login is not configured")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity, err := a.provider.Exchange(r.Context(), req.Code)
	if err != nil {
		obs.CountLogin("rejected")
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	out, err := a.auth.LoginWithProvider(r.Context(), identity)
	if err != nil {
		obs.CountLogin("rejected")
		handleAuthError(w, r, err)
		return
	}
	a.respondLogin(w, r, out, auth.PolicyPrimary)
}

// respondLogin finishes the password (or provider) step: either a pending
// challenge or a full primary session.
func (a *API) respondLogin(w http.ResponseWriter, r *http.Request, out auth.Outcome, policy auth.IssuancePolicy) {
	if out.TwoFactorRequired {
		obs.CountLogin("challenge")
		writeJSON(w, http.StatusOK, loginResponse{
			User:              out.User,
			TwoFactorRequired: true,
			ChallengeToken:    out.ChallengeToken,
		})
		return
	}
	obs.CountLogin("granted")
	a.setSessionCookies(w, out, policy)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": out.User.ID})
	writeJSON(w, http.StatusOK, loginResponse{User: out.User})
}

func (a *API) setSessionCookies(w http.ResponseWriter, out auth.Outcome, policy auth.IssuancePolicy) {
	if out.AccessToken != "" && policy.CookieName != "" {
		a.setCookie(w, policy.CookieName, out.AccessToken, accessCookieTTL)
	}
	if out.RefreshToken != "" {
		a.setCookie(w, cookieRefresh, out.RefreshToken, refreshCookieTTL)
	}
}

func (a *API) handleSecondFactor(policy auth.IssuancePolicy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req secondFactorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		out, err := a.auth.CompleteSecondFactor(r.Context(), req.ChallengeToken, req.Code, policy)
		if err != nil {
			obs.CountSecondFactor("rejected")
			handleAuthError(w, r, err)
			return
		}
		obs.CountSecondFactor("granted")
		a.setSessionCookies(w, out, policy)
		_ = audit.LogEvent(r.Context(), "auth.2fa.verified", map[string]any{
			"user_id": out.User.ID,
			"cookie":  policy.CookieName,
		})
		writeJSON(w, http.StatusOK, map[string]any{"user": out.User})
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if raw := cookieValue(r, cookieRefresh); raw != "" {
		if err := a.auth.Logout(r.Context(), raw); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	a.clearCookie(w, cookieAccess)
	a.clearCookie(w, cookieRefresh)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSecondFactorSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	secret, uri, err := a.auth.BeginSecondFactorSetup(r.Context(), principal.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      secret,
		"otpauth_uri": uri,
	})
}

func (a *API) handleSecondFactorConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ConfirmSecondFactorSetup(r.Context(), principal.ID, req.Code); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Existing refresh records are revoked on enable; drop the caller's
	// refresh cookie so the client does not keep presenting a dead secret.
	a.clearCookie(w, cookieRefresh)
	_ = audit.LogEvent(r.Context(), "auth.2fa.enabled", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSecondFactorDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := a.auth.DisableSecondFactor(r.Context(), principal.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.2fa.disabled", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": principal})
}
