// Package authz implements the authorization gates placed in front of
// handlers: role checks, permission checks, and instance-scoped checks.
// Every gate evaluates the Admin bypass first; an Admin principal passes
// without any further set membership test or storage read.
package authz

import (
	"github.com/skillgate/skillgate/pkg/principal"
)

// CheckRole reports whether the principal holds any of the allowed roles.
// Admin passes unconditionally.
func CheckRole(p *principal.Principal, allowed ...string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.HasAnyRole(allowed...)
}

// CheckPermission reports whether the principal holds the resource:action
// permission. Admin passes unconditionally.
func CheckPermission(p *principal.Principal, resource, action string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.HasPermission(principal.Permission{Resource: resource, Action: action})
}

// CheckAnyPermission reports whether the principal holds at least one of
// perms. A non-admin principal with an empty permission set is rejected
// before any intersection test. Admin passes unconditionally.
func CheckAnyPermission(p *principal.Principal, perms ...principal.Permission) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	if p.PermissionCount() == 0 {
		return false
	}
	return p.HasAnyPermission(perms...)
}
