package auth

import (
	"context"
	"time"
)

// AccountStore persists accounts keyed by lower-cased address. Implementations enforce
// address uniqueness.
type AccountStore interface {
	UpsertAccountByAddress(ctx context.Context, address string, chainID int64) (Account, error)
	GetAccountByAddress(ctx context.Context, address string) (Account, error)
	GetAccountByID(ctx context.Context, id string) (Account, error)
	UpdateRole(ctx context.Context, address string, role Role) error
	// PromoteRole sets role unless the account already holds it, in one atomic step,
	// and reports whether the row changed.
	PromoteRole(ctx context.Context, address string, role Role) (bool, error)
	UpdateProfile(ctx context.Context, address string, profile Profile) error
	AcceptTerms(ctx context.Context, address, version string, at time.Time) error
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
}

// GrantStore persists permission grants, unique on (account, permission).
type GrantStore interface {
	// UpsertGrant inserts or refreshes grantedBy/signature on an existing grant.
	UpsertGrant(ctx context.Context, grant PermissionGrant) (PermissionGrant, error)
	// DeleteGrant removes a grant. Deleting an absent grant is not an error.
	DeleteGrant(ctx context.Context, accountID string, permission Permission) error
	ListGrants(ctx context.Context, accountID string) ([]PermissionGrant, error)
}
