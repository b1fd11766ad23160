package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GrantService manages fine-grained permission grants for admin accounts.
type GrantService struct {
	accounts AccountStore
	grants   GrantStore
	resolver *RoleResolver
}

// NewGrantService wires the grant service. Grant changes invalidate the resolver's
// cache for the affected account.
func NewGrantService(accounts AccountStore, grants GrantStore, resolver *RoleResolver) *GrantService {
	return &GrantService{accounts: accounts, grants: grants, resolver: resolver}
}

// GrantPermission gives permission to accountID on behalf of granterID. Granting an
// existing permission refreshes grantedBy and signature. A granter can only hand out
// permissions it holds itself.
func (s *GrantService) GrantPermission(ctx context.Context, accountID string, permission Permission, granterID, signature string) (PermissionGrant, error) {
	perm, err := ParsePermission(string(permission))
	if err != nil {
		return PermissionGrant{}, err
	}
	granter, err := s.granter(ctx, granterID, perm)
	if err != nil {
		return PermissionGrant{}, err
	}
	target, err := s.accounts.GetAccountByID(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return PermissionGrant{}, err
	}
	defer s.resolver.Invalidate(target.Address)
	return s.grants.UpsertGrant(ctx, PermissionGrant{
		AccountID:  target.ID,
		Permission: perm,
		GrantedBy:  granter.ID,
		Signature:  signature,
	})
}

// RevokePermission removes a grant. Revoking a grant that does not exist is a no-op.
func (s *GrantService) RevokePermission(ctx context.Context, accountID string, permission Permission, revokerID string) error {
	perm, err := ParsePermission(string(permission))
	if err != nil {
		return err
	}
	if _, err := s.granter(ctx, revokerID, perm); err != nil {
		return err
	}
	target, err := s.accounts.GetAccountByID(ctx, strings.TrimSpace(accountID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer s.resolver.Invalidate(target.Address)
	return s.grants.DeleteGrant(ctx, target.ID, perm)
}

func (s *GrantService) granter(ctx context.Context, id string, perm Permission) (Account, error) {
	acc, err := s.accounts.GetAccountByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, ErrNotFound) {
		return Account{}, ErrGranterNotFound
	}
	if err != nil {
		return Account{}, err
	}
	access, err := s.resolver.GetAdminPermissions(ctx, acc.Address)
	if err != nil {
		return Account{}, err
	}
	if !access.Role.IsAdmin() || !access.Has(perm) {
		return Account{}, fmt.Errorf("%w: %s", ErrInsufficientPermission, perm)
	}
	return acc, nil
}

// GetPermissionGrants lists the grants held by accountID.
func (s *GrantService) GetPermissionGrants(ctx context.Context, accountID string) ([]PermissionGrant, error) {
	return s.grants.ListGrants(ctx, strings.TrimSpace(accountID))
}

// HasPermission reports whether address holds permission. Superadmins always do;
// plain users never do.
func (s *GrantService) HasPermission(ctx context.Context, address string, permission Permission) (bool, error) {
	access, err := s.resolver.GetAdminPermissions(ctx, address)
	if err != nil {
		return false, err
	}
	return access.Has(permission), nil
}

// HasAnyPermission reports whether address holds at least one of permissions.
func (s *GrantService) HasAnyPermission(ctx context.Context, address string, permissions ...Permission) (bool, error) {
	access, err := s.resolver.GetAdminPermissions(ctx, address)
	if err != nil {
		return false, err
	}
	return access.HasAny(permissions...), nil
}
