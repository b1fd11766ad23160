package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")

	ErrNoNonce = errors.New("auth: no challenge in progress")

	ErrNotAuthenticated       = errors.New("auth: not authenticated")
	ErrInsufficientRole       = errors.New("auth: insufficient role")
	ErrInsufficientPermission = errors.New("auth: insufficient permission")
	ErrGranterNotFound        = errors.New("auth: granter account not found")
)
