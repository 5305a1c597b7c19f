package auth

import "strings"

// Role is the closed set of roles a user can hold inside an organization or project.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleDelegate   Role = "delegate"
	RoleConsultant Role = "consultant"
	RoleViewer     Role = "viewer"
)

// LeastPrivilegeRole is what unrecognized role values collapse to.
const LeastPrivilegeRole = RoleViewer

// Roles lists every known role.
var Roles = []Role{RoleOwner, RoleDelegate, RoleConsultant, RoleViewer}

// ParseRole normalizes s. Unknown values map to LeastPrivilegeRole and ok=false.
func ParseRole(s string) (role Role, ok bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, true
	}
	return LeastPrivilegeRole, false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleDelegate, RoleConsultant, RoleViewer:
		return true
	}
	return false
}

// ResourceType selects the permission column a check is evaluated against.
type ResourceType string

const (
	ResourceOrg      ResourceType = "org"
	ResourceProject  ResourceType = "project"
	ResourceDocument ResourceType = "document"
	// ResourceApplication is checked through the owning organization against the project column.
	ResourceApplication ResourceType = "application"
)

// ParseResourceType accepts the scope names used on the wire.
func ParseResourceType(s string) (ResourceType, bool) {
	switch rt := ResourceType(strings.ToLower(strings.TrimSpace(s))); rt {
	case ResourceOrg, ResourceProject, ResourceDocument, ResourceApplication:
		return rt, true
	}
	return "", false
}
