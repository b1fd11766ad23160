package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"basemini.app/internal/audit"
	"basemini.app/internal/auth"
	"basemini.app/internal/obs"
	"basemini.app/internal/session"
	"basemini.app/internal/siwe"
)

type prepareRequest struct {
	Address string `json:"address"`
	ChainID int64  `json:"chainId"`
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type farcasterVerifyRequest struct {
	Message     string `json:"message"`
	Signature   string `json:"signature"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PfpURL      string `json:"pfpUrl,omitempty"`
}

type termsRequest struct {
	Version string `json:"version"`
}

type sessionView struct {
	IsLoggedIn         bool               `json:"isLoggedIn"`
	Address            string             `json:"address,omitempty"`
	ChainID            int64              `json:"chainId,omitempty"`
	Fid                uint64             `json:"fid,omitempty"`
	AuthMethod         session.AuthMethod `json:"authMethod,omitempty"`
	TosAcceptedVersion string             `json:"tosAcceptedVersion,omitempty"`
	TosAcceptedAt      *time.Time         `json:"tosAcceptedAt,omitempty"`
	TosRequired        bool               `json:"tosRequired"`
}

type roleView struct {
	Role         auth.Role         `json:"role"`
	IsAdmin      bool              `json:"isAdmin"`
	IsSuperAdmin bool              `json:"isSuperAdmin"`
	Permissions  []auth.Permission `json:"permissions"`
}

func (a *API) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	started := time.Now()
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	nonce, err := a.Auth.IssueNonce(r.Context(), h)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

func (a *API) handlePrepare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	started := time.Now()
	var req prepareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	msg, err := a.Auth.PrepareMessage(r.Context(), h, strings.TrimSpace(req.Address), req.ChainID)
	if errors.Is(err, siwe.ErrChainNotAllowed) {
		writeError(w, r, http.StatusBadRequest, "chain_not_allowed")
		return
	}
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg, "nonce": h.Session().Nonce})
}

func (a *API) handleVerifySIWE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	started := time.Now()
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Message == "" || req.Signature == "" {
		obs.Verifications.WithLabelValues(string(session.AuthMethodSIWE), "invalid_request").Inc()
		writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	acc, err := a.Auth.VerifySIWE(r.Context(), h, req.Message, req.Signature)
	a.signedIn(w, r, session.AuthMethodSIWE, acc, err, started)
}

func (a *API) handleVerifySIWF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	started := time.Now()
	var req farcasterVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Message == "" || req.Signature == "" {
		obs.Verifications.WithLabelValues(string(session.AuthMethodFarcaster), "invalid_request").Inc()
		writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	acc, err := a.Auth.VerifySIWF(r.Context(), h, auth.FarcasterSignIn{
		Message:     req.Message,
		Signature:   req.Signature,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.PfpURL,
	})
	a.signedIn(w, r, session.AuthMethodFarcaster, acc, err, started)
}

func (a *API) signedIn(w http.ResponseWriter, r *http.Request, method session.AuthMethod, acc auth.Account, err error, started time.Time) {
	if err != nil {
		code := handleError(w, r, err, started)
		obs.Verifications.WithLabelValues(string(method), code).Inc()
		return
	}
	obs.Verifications.WithLabelValues(string(method), "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": acc})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	started := time.Now()
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	if err := a.Auth.Logout(r.Context(), h); err != nil {
		handleError(w, r, err, started)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	s := h.Session()
	view := sessionView{IsLoggedIn: s.Authenticated()}
	if view.IsLoggedIn {
		view.Address = s.Address
		view.ChainID = s.ChainID
		view.Fid = s.Fid
		view.AuthMethod = s.AuthMethod
		view.TosAcceptedVersion = s.TosAcceptedVersion
		view.TosAcceptedAt = s.TosAcceptedAt
		view.TosRequired = a.TosVersion != "" && s.TosAcceptedVersion != a.TosVersion
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleTerms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	started := time.Now()
	var req termsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}
	if a.TosVersion != "" && strings.TrimSpace(req.Version) != a.TosVersion {
		writeError(w, r, http.StatusBadRequest, "unknown_terms_version")
		return
	}
	h, ok := a.openSession(w, r)
	if !ok {
		return
	}
	if err := a.Auth.AcceptTerms(r.Context(), h, req.Version); err != nil {
		handleError(w, r, err, started)
		return
	}
	if a.Audit != nil {
		s := h.Session()
		a.Audit.Record(r.Context(), audit.Entry{
			ActorAddress: s.Address,
			Action:       audit.ActionTermsAccept,
			ResourceType: "terms",
			ResourceID:   s.TosAcceptedVersion,
			Success:      true,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRole reports the caller's authority. A missing session is always 401.
func (a *API) handleRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
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
	writeJSON(w, http.StatusOK, roleView{
		Role:         access.Role,
		IsAdmin:      access.Role.IsAdmin(),
		IsSuperAdmin: access.Role == auth.RoleSuperAdmin,
		Permissions:  access.Permissions,
	})
}
