package auth

import (
	"errors"
	"testing"
)

func TestAuthorize(t *testing.T) {
	user := Access{Role: RoleUser, Permissions: []Permission{}}
	viewer := Access{Role: RoleAdmin, Permissions: []Permission{PermViewUsers}}
	bare := Access{Role: RoleAdmin, Permissions: []Permission{}}
	super := Access{Role: RoleSuperAdmin}
	forged := Access{Role: RoleUser, Permissions: []Permission{PermViewUsers}}

	cases := []struct {
		name   string
		access Access
		req    Requirement
		want   error
	}{
		{"superadmin passes role requirement", super, Requirement{Role: RoleSuperAdmin}, nil},
		{"superadmin passes permission requirement", super, Requirement{AnyOf: []Permission{PermViewAuditLog}}, nil},
		{"admin with grant", viewer, Requirement{AnyOf: []Permission{PermViewUsers}}, nil},
		{"admin without grant", bare, Requirement{AnyOf: []Permission{PermViewUsers}}, ErrInsufficientPermission},
		{"admin role requirement", bare, Requirement{Role: RoleAdmin}, nil},
		{"admin cannot act as superadmin", viewer, Requirement{Role: RoleSuperAdmin}, ErrInsufficientRole},
		{"user denied permission", user, Requirement{AnyOf: []Permission{PermViewUsers}}, ErrInsufficientPermission},
		{"user denied admin", user, Requirement{}, ErrInsufficientRole},
		{"permissions ignored below admin", forged, Requirement{AnyOf: []Permission{PermViewUsers}}, ErrInsufficientPermission},
		{"role or permission", viewer, Requirement{Role: RoleSuperAdmin, AnyOf: []Permission{PermViewUsers}}, nil},
	}
	for _, tc := range cases {
		err := Authorize(tc.access, tc.req)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := ContextWithPrincipal(t.Context(), Principal{Address: "0xabc", Access: Access{Role: RoleAdmin, Permissions: []Permission{PermViewUsers}}})
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatalf("expected principal")
	}
	if !p.HasPermission(PermViewUsers) || p.HasPermission(PermManageRoles) {
		t.Fatalf("unexpected permissions: %+v", p.Access)
	}
	if _, ok := PrincipalFromContext(t.Context()); ok {
		t.Fatalf("unexpected principal on bare context")
	}
}
