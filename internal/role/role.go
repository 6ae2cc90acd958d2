// Package role defines the closed workspace and group role enumerations and
// their total order used for permission gating.
package role

import "fmt"

// Role is a workspace role. The numeric rank defines a strict total order;
// permission checks are a plain >= comparison on rank.
type Role int

const (
	Viewer Role = 10
	Member Role = 20
	Admin  Role = 30
	Owner  Role = 40
)

// AtLeast reports whether r grants at least the permissions of required.
func (r Role) AtLeast(required Role) bool {
	return r >= required
}

func (r Role) String() string {
	switch r {
	case Viewer:
		return "viewer"
	case Member:
		return "member"
	case Admin:
		return "admin"
	case Owner:
		return "owner"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Parse maps a role name to its Role. Unknown names are rejected.
func Parse(name string) (Role, error) {
	switch name {
	case "viewer":
		return Viewer, nil
	case "member":
		return Member, nil
	case "admin":
		return Admin, nil
	case "owner":
		return Owner, nil
	}
	return 0, fmt.Errorf("role: unknown role %q", name)
}

// Group roles are independent of workspace roles. Workspace Admin+ bypasses
// group-level checks entirely, so only two levels exist here.
type GroupRole string

const (
	GroupMember GroupRole = "member"
	GroupAdmin  GroupRole = "admin"
)

// ParseGroup maps a group role name to its GroupRole.
func ParseGroup(name string) (GroupRole, error) {
	switch name {
	case "member":
		return GroupMember, nil
	case "admin":
		return GroupAdmin, nil
	}
	return "", fmt.Errorf("role: unknown group role %q", name)
}
