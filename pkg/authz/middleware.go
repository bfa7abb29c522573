package authz

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/skillgate/skillgate/pkg/authn"
	"github.com/skillgate/skillgate/pkg/contextkeys"
	"github.com/skillgate/skillgate/pkg/httputil"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/principal"
)

// Response bodies for denied requests. Role and permission misses are 403;
// an instance miss is 404 because the resource scope itself is absent.
const (
	msgInsufficientRole       = "Forbidden: insufficient role"
	msgInsufficientPermission = "Forbidden: insufficient permissions"
	msgNoAccessibleInstance   = "No accessible asset instance found"
)

// Authorizer builds the middleware variants that gate handlers. The
// principal is taken from the request context, so every variant assumes the
// authenticator ran earlier in the chain; a missing principal is answered
// with 401 rather than a panic.
type Authorizer struct {
	instances InstanceStore
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewAuthorizer creates an authorizer. metrics may be nil. instances is only
// needed when RequireInstance is used.
func NewAuthorizer(instances InstanceStore, logger *observability.Logger, metrics *observability.Metrics) *Authorizer {
	return &Authorizer{
		instances: instances,
		logger:    logger,
		metrics:   metrics,
	}
}

// RequireRole admits principals holding any of the allowed roles.
func (a *Authorizer) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := authn.PrincipalFromContext(r.Context())
			if !ok {
				a.unauthenticated(w, r, "role")
				return
			}
			if !CheckRole(p, allowed...) {
				a.deny(w, r, p, "role", "required one of: "+strings.Join(allowed, ", "))
				httputil.WriteForbidden(w, msgInsufficientRole)
				return
			}
			a.admit(r, p, "role")
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits principals holding the resource:action permission.
func (a *Authorizer) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	perm := principal.Permission{Resource: resource, Action: action}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := authn.PrincipalFromContext(r.Context())
			if !ok {
				a.unauthenticated(w, r, "permission")
				return
			}
			if !CheckPermission(p, resource, action) {
				a.deny(w, r, p, "permission", "required: "+perm.String())
				httputil.WriteForbidden(w, msgInsufficientPermission)
				return
			}
			a.admit(r, p, "permission")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission admits principals holding at least one of perms.
// Non-admin principals with no permissions at all are denied without an
// intersection test.
func (a *Authorizer) RequireAnyPermission(perms ...principal.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := authn.PrincipalFromContext(r.Context())
			if !ok {
				a.unauthenticated(w, r, "any_permission")
				return
			}
			if !CheckAnyPermission(p, perms...) {
				a.deny(w, r, p, "any_permission", "required any of the configured permissions")
				httputil.WriteForbidden(w, msgInsufficientPermission)
				return
			}
			a.admit(r, p, "any_permission")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireInstance admits principals that (a) are linked to at least one
// instance of the named asset and (b) hold the "<asset>:<action>" permission.
// The resolved instance is attached to the request context.
//
// Like InstanceStore.FindAccessible, this scopes by asset TYPE, not by the
// specific object named in the URL. Admin principals skip both the instance
// lookup and the permission test, so no instance is attached for them.
func (a *Authorizer) RequireInstance(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := authn.PrincipalFromContext(r.Context())
			if !ok {
				a.unauthenticated(w, r, "instance")
				return
			}
			if p.IsAdmin() {
				a.admit(r, p, "instance")
				next.ServeHTTP(w, r)
				return
			}

			inst, err := a.instances.FindAccessible(r.Context(), p.ID, resource)
			if err != nil {
				if errors.Is(err, ErrNoAccessibleInstance) {
					a.deny(w, r, p, "instance", "no instance of "+resource)
					httputil.WriteNotFoundError(w, msgNoAccessibleInstance)
					return
				}
				a.logger.WithError(err).WithField("path", r.URL.Path).
					Error("instance lookup failed")
				if a.metrics != nil {
					a.metrics.AuthzDecisionsTotal.WithLabelValues("instance", "error").Inc()
				}
				httputil.WriteInternalError(w, errors.New("internal server error"))
				return
			}

			if !CheckPermission(p, resource, action) {
				a.deny(w, r, p, "instance", "required: "+resource+":"+action)
				httputil.WriteForbidden(w, msgInsufficientPermission)
				return
			}

			a.admit(r, p, "instance")
			ctx := context.WithValue(r.Context(), contextkeys.InstanceKey, inst)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InstanceFromContext retrieves the asset instance attached by RequireInstance.
func InstanceFromContext(ctx context.Context) (*AssetInstance, bool) {
	inst, ok := ctx.Value(contextkeys.InstanceKey).(*AssetInstance)
	return inst, ok
}

func (a *Authorizer) unauthenticated(w http.ResponseWriter, r *http.Request, check string) {
	a.logger.WithField("path", r.URL.Path).
		WithField("check", check).
		Warn("authorization reached without principal")
	if a.metrics != nil {
		a.metrics.AuthzDecisionsTotal.WithLabelValues(check, "unauthenticated").Inc()
	}
	httputil.WriteUnauthorized(w, "Unauthorized")
}

func (a *Authorizer) deny(w http.ResponseWriter, r *http.Request, p *principal.Principal, check, detail string) {
	a.logger.WithFields(map[string]interface{}{
		"path":      r.URL.Path,
		"principal": p.ID,
		"check":     check,
		"detail":    detail,
	}).Debug("authorization denied")
	if a.metrics != nil {
		a.metrics.AuthzDecisionsTotal.WithLabelValues(check, "denied").Inc()
	}
}

func (a *Authorizer) admit(r *http.Request, p *principal.Principal, check string) {
	if a.metrics != nil {
		a.metrics.AuthzDecisionsTotal.WithLabelValues(check, "allowed").Inc()
	}
}
