package auth

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role is the coarse privilege level of an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(strings.ToLower(s))); r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

func (r Role) rank() int {
	switch r {
	case RoleSuperAdmin:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is as privileged as other.
func (r Role) AtLeast(other Role) bool { return r.rank() >= other.rank() }

// IsAdmin is true for admin and superadmin.
func (r Role) IsAdmin() bool { return r.AtLeast(RoleAdmin) }

// Account is the persisted record for a wallet address. Address is stored lower-cased.
type Account struct {
	ID                 string     `json:"id"`
	Address            string     `json:"address"`
	Role               Role       `json:"role"`
	ChainID            int64      `json:"chainId"`
	Fid                uint64     `json:"fid,omitempty"`
	Username           string     `json:"username,omitempty"`
	DisplayName        string     `json:"displayName,omitempty"`
	AvatarURL          string     `json:"avatarUrl,omitempty"`
	TosAcceptedVersion string     `json:"tosAcceptedVersion,omitempty"`
	TosAcceptedAt      *time.Time `json:"tosAcceptedAt,omitempty"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Profile is cosmetic display data. It never establishes identity.
type Profile struct {
	Fid         uint64
	Username    string
	DisplayName string
	AvatarURL   string
}

// PermissionGrant ties one permission to an admin account.
type PermissionGrant struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"accountId"`
	Permission Permission `json:"permission"`
	GrantedBy  string     `json:"grantedBy"`
	Signature  string     `json:"signature,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// AccountFilter narrows ListAccounts. After is an account id cursor.
type AccountFilter struct {
	Role  Role
	After string
	Limit int
}

// Access is the resolved authority of an address.
type Access struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// Has reports whether the access includes p. Superadmins hold every permission.
func (a Access) Has(p Permission) bool {
	if a.Role == RoleSuperAdmin {
		return true
	}
	for _, held := range a.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// HasAny reports whether the access includes at least one of ps.
func (a Access) HasAny(ps ...Permission) bool {
	for _, p := range ps {
		if a.Has(p) {
			return true
		}
	}
	return false
}

func sortedPermissions(grants []PermissionGrant) []Permission {
	out := make([]Permission, 0, len(grants))
	seen := make(map[Permission]struct{}, len(grants))
	for _, g := range grants {
		if _, ok := seen[g.Permission]; ok {
			continue
		}
		seen[g.Permission] = struct{}{}
		out = append(out, g.Permission)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NormalizeAddress lower-cases and trims an address for use as an identity key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
