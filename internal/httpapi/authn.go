package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"pongarena.org/internal/audit"
	"pongarena.org/internal/auth"
	"pongarena.org/internal/obs"
)

// publicPaths need no session. Everything else behind withAuth requires a
// verified principal.
var publicPaths = map[string]bool{
	"/":                       true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/v1/info":                true,
	"/v1/auth/register":       true,
	"/v1/auth/login":          true,
	"/v1/auth/oauth/callback": true,
	"/v1/auth/2fa/verify":     true,
	"/v1/auth/2fa/player2":    true,
	"/v1/auth/2fa/guest":      true,
	"/v1/auth/logout":         true,
}

// accessTokenFromRequest prefers the session cookie and falls back to a
// bearer header for non-browser clients.
func accessTokenFromRequest(r *http.Request) string {
	if v := cookieValue(r, cookieAccess); v != "" {
		return v
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// withAuth gates the authenticated surface. A valid access credential passes
// through; an expired one is silently replaced from the refresh record, with
// the fresh token re-issued as a cookie so the browser catches up.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		access := accessTokenFromRequest(r)
		refresh := cookieValue(r, cookieRefresh)
		if access == "" && refresh == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			return
		}

		principal, fresh, err := a.auth.AuthenticateRequest(r.Context(), access, refresh)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				if refresh != "" {
					obs.CountRefresh("rejected")
				}
				writeError(w, r, http.StatusUnauthorized, "unauthenticated")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if fresh != "" {
			obs.CountRefresh("granted")
			a.setCookie(w, cookieAccess, fresh, accessCookieTTL)
			_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{"user_id": principal.ID})
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
