package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"basemini.app/internal/audit"
	"basemini.app/internal/auth"
)

type updateRoleRequest struct {
	Role string `json:"role"`
}

type grantRequest struct {
	Permission string `json:"permission"`
	Signature  string `json:"signature,omitempty"`
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	started := time.Now()
	q := r.URL.Query()
	filter := auth.AccountFilter{After: q.Get("after")}
	if raw := q.Get("role"); raw != "" {
		role, err := auth.ParseRole(raw)
		if err != nil {
			handleError(w, r, err, started)
			return
		}
		filter.Role = role
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = n
	}
	accounts, err := a.Accounts.ListAccounts(r.Context(), filter)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	resp := map[string]any{"accounts": accounts}
	if n := len(accounts); n > 0 && filter.Limit > 0 && n == filter.Limit {
		resp["nextCursor"] = accounts[n-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAccountResource routes /v1/admin/accounts/{key}/...
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/accounts/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	key := parts[0]
	managePermissions := auth.Requirement{AnyOf: []auth.Permission{auth.PermManagePermissions}}

	switch {
	case len(parts) == 2 && parts[1] == "role":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.requireAccess(auth.Requirement{Role: auth.RoleSuperAdmin}, func(w http.ResponseWriter, r *http.Request) {
			a.handleUpdateRole(w, r, key)
		})(w, r)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
			return
		}
		a.requireAccess(managePermissions, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				a.handleListGrants(w, r, key)
				return
			}
			a.handleGrant(w, r, key)
		})(w, r)
	case len(parts) == 3 && parts[1] == "permissions":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.requireAccess(managePermissions, func(w http.ResponseWriter, r *http.Request) {
			a.handleRevoke(w, r, key, parts[2])
		})(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "not_found")
	}
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request, address string) {
	started := time.Now()
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}
	if !common.IsHexAddress(address) {
		writeError(w, r, http.StatusBadRequest, "invalid_address")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	target := auth.NormalizeAddress(address)
	if target == principal.Address {
		writeError(w, r, http.StatusForbidden, "cannot_change_own_role")
		return
	}
	prev, err := a.Accounts.GetAccountByAddress(r.Context(), target)
	if err != nil {
		handleError(w, r, err, started)
		return
	}

	err = a.Roles.UpdateUserRole(r.Context(), target, role)
	a.record(r, audit.Entry{
		Action:        audit.ActionRoleUpdate,
		ResourceType:  "account",
		ResourceID:    target,
		PreviousValue: audit.Snapshot(map[string]string{"role": string(prev.Role)}),
		NewValue:      audit.Snapshot(map[string]string{"role": string(role)}),
	}, err)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	updated, err := a.Accounts.GetAccountByAddress(r.Context(), target)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleListGrants(w http.ResponseWriter, r *http.Request, accountID string) {
	started := time.Now()
	if _, err := a.Accounts.GetAccountByID(r.Context(), accountID); err != nil {
		handleError(w, r, err, started)
		return
	}
	grants, err := a.Grants.GetPermissionGrants(r.Context(), accountID)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (a *API) handleGrant(w http.ResponseWriter, r *http.Request, accountID string) {
	started := time.Now()
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}
	perm, err := auth.ParsePermission(req.Permission)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	grant, err := a.Grants.GrantPermission(r.Context(), accountID, perm, principal.AccountID, strings.TrimSpace(req.Signature))
	a.record(r, audit.Entry{
		Action:       audit.ActionPermissionGrant,
		ResourceType: "permission_grant",
		ResourceID:   accountID + "/" + string(perm),
		NewValue:     audit.Snapshot(map[string]string{"permission": string(perm), "grantedBy": principal.AccountID}),
	}, err)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request, accountID, rawPerm string) {
	started := time.Now()
	perm, err := auth.ParsePermission(rawPerm)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	err = a.Grants.RevokePermission(r.Context(), accountID, perm, principal.AccountID)
	a.record(r, audit.Entry{
		Action:        audit.ActionPermissionRevoke,
		ResourceType:  "permission_grant",
		ResourceID:    accountID + "/" + string(perm),
		PreviousValue: audit.Snapshot(map[string]string{"permission": string(perm)}),
	}, err)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// record writes an audit entry for an admin mutation, successful or not.
func (a *API) record(r *http.Request, e audit.Entry, err error) {
	if a.Audit == nil {
		return
	}
	e.Success = err == nil
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	a.Audit.Record(r.Context(), e)
}
