package auth

// Requirement describes what a protected operation needs. A caller passes when it is a
// superadmin, when its role is at least Role, or when it holds any of AnyOf.
type Requirement struct {
	Role  Role
	AnyOf []Permission
}

// Authorize evaluates access against req. It never returns nil for an unsatisfied
// requirement; an empty requirement admits any admin.
func Authorize(access Access, req Requirement) error {
	if access.Role == RoleSuperAdmin {
		return nil
	}
	if req.Role == "" && len(req.AnyOf) == 0 {
		if access.Role.IsAdmin() {
			return nil
		}
		return ErrInsufficientRole
	}
	if req.Role != "" && access.Role.AtLeast(req.Role) {
		return nil
	}
	if len(req.AnyOf) > 0 && access.Role.IsAdmin() && access.HasAny(req.AnyOf...) {
		return nil
	}
	if len(req.AnyOf) > 0 {
		return ErrInsufficientPermission
	}
	return ErrInsufficientRole
}
