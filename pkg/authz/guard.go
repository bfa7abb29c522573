package authz

import (
	"net/http"

	"github.com/skillgate/skillgate/pkg/authn"
)

type guardKind int

const (
	guardInvalid guardKind = iota
	guardRoles
	guardInstance
)

// GuardSpec selects which authorization gate a route uses. Build one with
// ByRoles or ByInstance; the two are mutually exclusive by construction, so
// a route can never carry both a role list and an instance scope. The zero
// value is invalid and Guard.Wrap panics on it at registration time.
type GuardSpec struct {
	kind     guardKind
	roles    []string
	resource string
	action   string
}

// ByRoles builds a spec that admits the listed roles.
func ByRoles(roles ...string) GuardSpec {
	return GuardSpec{kind: guardRoles, roles: roles}
}

// ByInstance builds a spec that requires an accessible instance of resource
// plus the "<resource>:<action>" permission.
func ByInstance(resource, action string) GuardSpec {
	return GuardSpec{kind: guardInstance, resource: resource, action: action}
}

// Guard composes authentication and one authorization gate in front of a
// handler. The gate is selected once at route registration, not per request.
type Guard struct {
	auth  *authn.Authenticator
	authz *Authorizer
}

// NewGuard creates a guard from the two middleware providers.
func NewGuard(auth *authn.Authenticator, authz *Authorizer) *Guard {
	return &Guard{auth: auth, authz: authz}
}

// Wrap returns authenticate -> authorize -> handler for the given spec.
func (g *Guard) Wrap(spec GuardSpec, handler http.Handler) http.Handler {
	var gate func(http.Handler) http.Handler
	switch spec.kind {
	case guardRoles:
		gate = g.authz.RequireRole(spec.roles...)
	case guardInstance:
		gate = g.authz.RequireInstance(spec.resource, spec.action)
	default:
		panic("authz: GuardSpec must be built with ByRoles or ByInstance")
	}
	return g.auth.Middleware(gate(handler))
}

// WrapFunc is Wrap for plain handler functions.
func (g *Guard) WrapFunc(spec GuardSpec, handler http.HandlerFunc) http.Handler {
	return g.Wrap(spec, handler)
}

// Authenticated returns authenticate -> handler with no authorization gate,
// for routes that only need a principal attached.
func (g *Guard) Authenticated(handler http.Handler) http.Handler {
	return g.auth.Middleware(handler)
}
