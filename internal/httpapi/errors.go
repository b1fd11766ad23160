package httpapi

import (
	"errors"
	"net/http"
	"time"

	"basemini.app/internal/auth"
	"basemini.app/internal/obs"
	"basemini.app/internal/siwe"
)

type errorClass struct {
	err    error
	status int
	code   string
}

// errorClasses is ordered: the first match wins.
var errorClasses = []errorClass{
	{auth.ErrNoNonce, http.StatusUnauthorized, "no_nonce"},
	{siwe.ErrMalformedMessage, http.StatusBadRequest, "malformed_message"},
	{auth.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{siwe.ErrNonceMismatch, http.StatusUnauthorized, "nonce_mismatch"},
	{siwe.ErrDomainMismatch, http.StatusUnauthorized, "domain_mismatch"},
	{siwe.ErrURIMismatch, http.StatusUnauthorized, "uri_mismatch"},
	{siwe.ErrChainNotAllowed, http.StatusUnauthorized, "chain_not_allowed"},
	{siwe.ErrMessageExpired, http.StatusUnauthorized, "message_expired"},
	{siwe.ErrMessageNotYetValid, http.StatusUnauthorized, "message_not_yet_valid"},
	{siwe.ErrSignatureInvalid, http.StatusUnauthorized, "invalid_signature"},
	{siwe.ErrFarcasterDisabled, http.StatusServiceUnavailable, "farcaster_disabled"},
	{auth.ErrNotAuthenticated, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrInsufficientRole, http.StatusForbidden, "insufficient_role"},
	{auth.ErrInsufficientPermission, http.StatusForbidden, "insufficient_permission"},
	{auth.ErrGranterNotFound, http.StatusForbidden, "granter_not_found"},
	{auth.ErrNotFound, http.StatusNotFound, "not_found"},
}

// classify maps err to an HTTP status and machine code. Unknown errors are 500.
func classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// handleError writes err and logs it when it is unexpected. It returns the machine code.
func handleError(w http.ResponseWriter, r *http.Request, err error, started time.Time) string {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		obs.Error("request_failed", err, map[string]any{
			"request_id":  RequestIDFromContext(r.Context()),
			"method":      r.Method,
			"endpoint":    obs.CanonicalPath(r.URL.Path),
			"duration_ms": float64(time.Since(started).Microseconds()) / 1000,
		})
	}
	writeError(w, r, status, code)
	return code
}
