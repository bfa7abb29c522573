// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains the authenticated principal
	// Set by: authn.Authenticator middleware (pkg/authn/middleware.go)
	// Required by: authz middleware, all guarded endpoints
	// Type: *principal.Principal
	PrincipalKey Key = "principal"

	// InstanceKey contains the asset instance resolved for the request
	// Set by: authz.Authorizer.RequireInstance (pkg/authz/middleware.go)
	// Used by: instance-scoped endpoints
	// Type: *authz.AssetInstance
	InstanceKey Key = "asset_instance"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
