package httpapi

import (
	"context"
	"net/http"
	"time"

	"basemini.app/internal/audit"
	"basemini.app/internal/auth"
	"basemini.app/internal/obs"
	"basemini.app/internal/session"
	"basemini.app/internal/stream"
)

// Pinger reports backend readiness, e.g. a database ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Sessions *session.Manager
	Auth     *auth.Authenticator
	Roles    *auth.RoleResolver
	Grants   *auth.GrantService
	Accounts auth.AccountStore
	Audit    *audit.Recorder
	AuditLog audit.Reader
	Feed     *stream.Stream[audit.Entry]
	Ready    Pinger

	Version        string
	AllowedOrigins []string
	TosVersion     string
	NonceRate      float64
	NonceBurst     int
}

// API is the HTTP layer.
type API struct {
	mux *http.ServeMux
	Deps
}

// New wires routes.
func New(d Deps) *API {
	if d.NonceRate <= 0 {
		d.NonceRate = 1
	}
	if d.NonceBurst <= 0 {
		d.NonceBurst = 10
	}
	a := &API{mux: http.NewServeMux(), Deps: d}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Readyz)
	a.mux.Handle("/metrics", obs.Handler())

	limited := func(h http.HandlerFunc) http.Handler { return RateLimit(h, a.NonceBurst, a.NonceRate) }
	a.mux.Handle("/v1/auth/nonce", limited(a.handleNonce))
	a.mux.Handle("/v1/auth/siwe/prepare", limited(a.handlePrepare))
	a.mux.HandleFunc("/v1/auth/siwe/verify", a.handleVerifySIWE)
	a.mux.HandleFunc("/v1/auth/farcaster/verify", a.handleVerifySIWF)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)
	a.mux.HandleFunc("/v1/auth/tos", a.handleTerms)
	a.mux.HandleFunc("/v1/auth/role", a.handleRole)

	a.mux.HandleFunc("/v1/admin/accounts", a.requireAccess(auth.Requirement{
		AnyOf: []auth.Permission{auth.PermViewUsers, auth.PermManageUsers},
	}, a.handleListAccounts))
	a.mux.HandleFunc("/v1/admin/accounts/", a.handleAccountResource)
	a.mux.HandleFunc("/v1/admin/audit", a.requireAccess(auth.Requirement{
		AnyOf: []auth.Permission{auth.PermViewAuditLog},
	}, a.handleAuditLog))
	a.mux.HandleFunc("/v1/admin/audit/stream", a.requireAccess(auth.Requirement{
		AnyOf: []auth.Permission{auth.PermViewAuditLog},
	}, a.handleAuditStream))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	})
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.AllowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "miniapp-auth",
		"version": a.Version,
	})
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ready.Ping(ctx); err != nil {
			obs.Error("readiness_failed", err, map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
			})
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  "not_ready",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
