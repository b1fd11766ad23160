package siwe

import "errors"

var (
	ErrMalformedMessage   = errors.New("siwe: malformed message")
	ErrNonceMismatch      = errors.New("siwe: nonce mismatch")
	ErrDomainMismatch     = errors.New("siwe: domain mismatch")
	ErrURIMismatch        = errors.New("siwe: uri mismatch")
	ErrChainNotAllowed    = errors.New("siwe: chain not allowed")
	ErrMessageExpired     = errors.New("siwe: message expired")
	ErrMessageNotYetValid = errors.New("siwe: message not yet valid")
	ErrSignatureInvalid   = errors.New("siwe: invalid signature")
	ErrFarcasterDisabled  = errors.New("siwe: farcaster verification not configured")
)
