// Package api wires the HTTP surface of skillgate: credential issuance
// (login, refresh), session lifecycle (logout, logout-all), principal
// introspection (whoami), and the Admin-guarded grant/revoke routes.
//
// Routes needing a principal are composed through authz.Guard at
// registration time:
//
//	router.Handle("/admin/users/{id}/roles",
//		guard.WrapFunc(authz.ByRoles(principal.AdminRole), h.assignRole)).Methods("POST")
//
// The server applies the standard middleware chain (request ID, logging,
// recovery, optional CORS and Prometheus instrumentation) around the router
// and can wrap the whole handler in otelhttp when tracing is enabled.
package api
