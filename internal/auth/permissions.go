package auth

import (
	"fmt"
	"strings"
)

// Permission is a fine-grained admin capability.
type Permission string

const (
	PermManageUsers       Permission = "MANAGE_USERS"
	PermManageRoles       Permission = "MANAGE_ROLES"
	PermViewUsers         Permission = "VIEW_USERS"
	PermManageCollections Permission = "MANAGE_COLLECTIONS"
	PermManageSettings    Permission = "MANAGE_SETTINGS"
	PermViewAuditLog      Permission = "VIEW_AUDIT_LOG"
	PermManagePermissions Permission = "MANAGE_PERMISSIONS"
	PermViewAnalytics     Permission = "VIEW_ANALYTICS"
)

var allPermissions = []Permission{
	PermManageUsers,
	PermManageRoles,
	PermViewUsers,
	PermManageCollections,
	PermManageSettings,
	PermViewAuditLog,
	PermManagePermissions,
	PermViewAnalytics,
}

// AllPermissions returns a copy of every defined permission.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(strings.ToUpper(s)))
	for _, known := range allPermissions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
}
