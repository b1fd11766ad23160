package httpapi

import (
	"errors"
	"net/http"
	"time"

	"basemini.app/internal/auth"
	"basemini.app/internal/session"
)

// openSession loads the request session or writes a 500.
func (a *API) openSession(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	h, err := a.Sessions.Open(w, r)
	if err != nil {
		handleError(w, r, err, time.Now())
		return nil, false
	}
	return h, true
}

// requireAccess admits only signed-in callers whose resolved access satisfies req.
// Missing sessions are 401; insufficient authority is 403.
func (a *API) requireAccess(req auth.Requirement, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		h, ok := a.openSession(w, r)
		if !ok {
			return
		}
		s := h.Session()
		if !s.Authenticated() {
			handleError(w, r, auth.ErrNotAuthenticated, started)
			return
		}
		access, err := a.Roles.GetAdminPermissions(r.Context(), s.Address)
		if err != nil {
			handleError(w, r, err, started)
			return
		}
		principal := auth.Principal{Address: s.Address, Access: access}
		acc, err := a.Accounts.GetAccountByAddress(r.Context(), s.Address)
		switch {
		case err == nil:
			principal.AccountID = acc.ID
		case !errors.Is(err, auth.ErrNotFound):
			handleError(w, r, err, started)
			return
		}
		if err := auth.Authorize(access, req); err != nil {
			handleError(w, r, err, started)
			return
		}
		next(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	}
}
