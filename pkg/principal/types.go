// Package principal defines the authenticated actor model: who a request
// acts as, which roles they hold, and the flattened permission set derived
// from those roles. A Principal is built once per request by a Loader and
// is immutable afterwards.
package principal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AdminRole is the role name that bypasses every authorization check.
const AdminRole = "Admin"

// ErrNotFound indicates the principal id does not resolve to an active user.
var ErrNotFound = errors.New("principal not found")

// Permission identifies one grantable capability as a resource/action pair.
// Its canonical form is "<resource>:<action>", which is why neither part may
// contain a colon.
type Permission struct {
	Resource string
	Action   string
}

// String returns the canonical "<resource>:<action>" key.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Validate checks that the pair produces an unambiguous canonical key.
func (p Permission) Validate() error {
	if p.Resource == "" {
		return fmt.Errorf("permission resource is required")
	}
	if p.Action == "" {
		return fmt.Errorf("permission action is required")
	}
	if strings.Contains(p.Resource, ":") || strings.Contains(p.Action, ":") {
		return fmt.Errorf("permission parts must not contain ':': %q", p.String())
	}
	return nil
}

// ParsePermission parses a canonical "<resource>:<action>" key.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Permission{}, fmt.Errorf("invalid permission key %q: want <resource>:<action>", s)
	}
	p := Permission{Resource: parts[0], Action: parts[1]}
	if err := p.Validate(); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Principal is the per-request snapshot of an authenticated actor. The role
// and permission sets are resolved at load time and never mutated, so a
// Principal is safe to share across goroutines handling the same request.
type Principal struct {
	ID    string
	Email string

	roles       map[string]struct{}
	permissions map[Permission]struct{}
}

// New builds a Principal from the given role names and permissions.
// Duplicates are collapsed.
func New(id, email string, roles []string, permissions []Permission) *Principal {
	p := &Principal{
		ID:          id,
		Email:       email,
		roles:       make(map[string]struct{}, len(roles)),
		permissions: make(map[Permission]struct{}, len(permissions)),
	}
	for _, r := range roles {
		p.roles[r] = struct{}{}
	}
	for _, perm := range permissions {
		p.permissions[perm] = struct{}{}
	}
	return p
}

// HasRole reports whether the principal holds the named role. Exact match,
// no admin shortcut; bypass decisions belong to the authorizer.
func (p *Principal) HasRole(name string) bool {
	_, ok := p.roles[name]
	return ok
}

// HasAnyRole reports whether the principal holds at least one of the names.
func (p *Principal) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if p.HasRole(n) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the Admin role.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(AdminRole)
}

// HasPermission reports whether the flattened permission set contains perm.
func (p *Principal) HasPermission(perm Permission) bool {
	_, ok := p.permissions[perm]
	return ok
}

// HasAnyPermission reports whether at least one of perms is held.
func (p *Principal) HasAnyPermission(perms ...Permission) bool {
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

// PermissionCount returns the size of the flattened permission set.
func (p *Principal) PermissionCount() int {
	return len(p.permissions)
}

// Roles returns the role names in sorted order.
func (p *Principal) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Permissions returns the canonical permission keys in sorted order.
func (p *Principal) Permissions() []string {
	out := make([]string, 0, len(p.permissions))
	for perm := range p.permissions {
		out = append(out, perm.String())
	}
	sort.Strings(out)
	return out
}
