package auth

import (
	"context"
	"errors"
	"fmt"
)

// RoleResolver answers role and permission questions for addresses, caching both
// per address. Writes through the resolver invalidate the cache before returning.
type RoleResolver struct {
	accounts   AccountStore
	grants     GrantStore
	roles      Cache[Role]
	perms      Cache[[]Permission]
	superAdmin string
}

// ResolverOption customises a RoleResolver.
type ResolverOption func(*RoleResolver)

// WithRoleCache replaces the role cache.
func WithRoleCache(c Cache[Role]) ResolverOption {
	return func(r *RoleResolver) { r.roles = c }
}

// WithPermissionCache replaces the admin permission cache.
func WithPermissionCache(c Cache[[]Permission]) ResolverOption {
	return func(r *RoleResolver) { r.perms = c }
}

// WithSuperAdmin configures the bootstrap superadmin address.
func WithSuperAdmin(address string) ResolverOption {
	return func(r *RoleResolver) { r.superAdmin = NormalizeAddress(address) }
}

// NewRoleResolver wires a resolver over the given stores.
func NewRoleResolver(accounts AccountStore, grants GrantStore, opts ...ResolverOption) *RoleResolver {
	r := &RoleResolver{
		accounts: accounts,
		grants:   grants,
		roles:    NewTTLCache[Role](DefaultCacheTTL),
		perms:    NewTTLCache[[]Permission](DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetUserRole returns the role of address. Unknown addresses are plain users.
func (r *RoleResolver) GetUserRole(ctx context.Context, address string) (Role, error) {
	addr := NormalizeAddress(address)
	return cached(ctx, r.roles, "role", addr, func(ctx context.Context) (Role, error) {
		acc, err := r.accounts.GetAccountByAddress(ctx, addr)
		if errors.Is(err, ErrNotFound) {
			return RoleUser, nil
		}
		if err != nil {
			return "", err
		}
		if _, err := ParseRole(string(acc.Role)); err != nil {
			return RoleUser, nil
		}
		return acc.Role, nil
	})
}

func (r *RoleResolver) IsAdmin(ctx context.Context, address string) (bool, error) {
	role, err := r.GetUserRole(ctx, address)
	if err != nil {
		return false, err
	}
	return role.IsAdmin(), nil
}

func (r *RoleResolver) IsSuperAdmin(ctx context.Context, address string) (bool, error) {
	role, err := r.GetUserRole(ctx, address)
	if err != nil {
		return false, err
	}
	return role == RoleSuperAdmin, nil
}

// UpdateUserRole persists a role change. The cached role and permissions for the
// address are dropped before the call returns, whatever the outcome.
func (r *RoleResolver) UpdateUserRole(ctx context.Context, address string, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	addr := NormalizeAddress(address)
	defer r.Invalidate(addr)
	return r.accounts.UpdateRole(ctx, addr, role)
}

// InitializeSuperAdmin promotes address when it is the configured bootstrap superadmin
// and not already promoted. It reports whether a promotion happened.
func (r *RoleResolver) InitializeSuperAdmin(ctx context.Context, address string) (bool, error) {
	addr := NormalizeAddress(address)
	if r.superAdmin == "" || addr != r.superAdmin {
		return false, nil
	}
	promoted, err := r.accounts.PromoteRole(ctx, addr, RoleSuperAdmin)
	if err != nil {
		return false, fmt.Errorf("bootstrap superadmin: %w", err)
	}
	if promoted {
		r.Invalidate(addr)
	}
	return promoted, nil
}

// GetAdminPermissions resolves the role and effective permissions of address.
// Superadmins get every permission without consulting grants; users get none.
func (r *RoleResolver) GetAdminPermissions(ctx context.Context, address string) (Access, error) {
	addr := NormalizeAddress(address)
	role, err := r.GetUserRole(ctx, addr)
	if err != nil {
		return Access{}, err
	}
	switch role {
	case RoleSuperAdmin:
		return Access{Role: role, Permissions: AllPermissions()}, nil
	case RoleAdmin:
		perms, err := cached(ctx, r.perms, "permissions", addr, func(ctx context.Context) ([]Permission, error) {
			acc, err := r.accounts.GetAccountByAddress(ctx, addr)
			if errors.Is(err, ErrNotFound) {
				return []Permission{}, nil
			}
			if err != nil {
				return nil, err
			}
			grants, err := r.grants.ListGrants(ctx, acc.ID)
			if err != nil {
				return nil, err
			}
			return sortedPermissions(grants), nil
		})
		if err != nil {
			return Access{}, err
		}
		out := make([]Permission, len(perms))
		copy(out, perms)
		return Access{Role: role, Permissions: out}, nil
	default:
		return Access{Role: RoleUser, Permissions: []Permission{}}, nil
	}
}

// Invalidate drops cached authority for address.
func (r *RoleResolver) Invalidate(address string) {
	addr := NormalizeAddress(address)
	r.roles.Delete(addr)
	r.perms.Delete(addr)
}
