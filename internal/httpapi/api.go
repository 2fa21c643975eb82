package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"pongarena.org/internal/auth"
	"pongarena.org/internal/obs"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the session orchestrator.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	provider auth.IdentityProvider

	cookieSecure bool
	rateBurst    int
	ratePerSec   int
}

// Option configures the API.
type Option func(*API)

// WithCookieSecure marks issued cookies Secure (production).
func WithCookieSecure(secure bool) Option {
	return func(a *API) { a.cookieSecure = secure }
}

// WithIdentityProvider enables third-party login.
func WithIdentityProvider(p auth.IdentityProvider) Option {
	return func(a *API) { a.provider = p }
}

// WithRateLimit overrides the per-IP rate limit on credential endpoints.
func WithRateLimit(burst, perSec int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSec
	}
}

// New wires the route table.
func New(rp ReadyProbe, version string, svc *auth.Service, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       svc,
		rateBurst:  10,
		ratePerSec: 5,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session protocol
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/oauth/callback", a.handleOAuthCallback)
	a.mux.HandleFunc("/v1/auth/2fa/verify", a.handleSecondFactor(auth.PolicyPrimary))
	a.mux.HandleFunc("/v1/auth/2fa/player2", a.handleSecondFactor(auth.PolicyCoPlayer))
	a.mux.HandleFunc("/v1/auth/2fa/guest", a.handleSecondFactor(auth.PolicyGuest))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// authenticated surface
	a.mux.HandleFunc("/v1/auth/2fa/setup", a.handleSecondFactorSetup)
	a.mux.HandleFunc("/v1/auth/2fa/confirm", a.handleSecondFactorConfirm)
	a.mux.HandleFunc("/v1/auth/2fa/disable", a.handleSecondFactorDisable)
	a.mux.HandleFunc("/v1/me", a.handleMe)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "arena-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "arena-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
