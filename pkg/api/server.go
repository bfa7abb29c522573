package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/skillgate/skillgate/pkg/authn"
	"github.com/skillgate/skillgate/pkg/authz"
	"github.com/skillgate/skillgate/pkg/httputil"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/ratelimit"
	"github.com/skillgate/skillgate/pkg/session"
)

// Options carries the dependencies the API server composes.
type Options struct {
	DB       *sql.DB
	Guard    *authz.Guard
	Issuer   *authn.Issuer
	Verifier *authn.Verifier
	Sessions session.Registry
	Limiter  ratelimit.Limiter
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	CORSOrigins     []string
	LoginRateLimit  int
	LoginRateWindow time.Duration
	TracingEnabled  bool
}

// Server represents the API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(opts Options) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: opts.Logger,
	}

	authHandlers := NewAuthHandlers(opts.DB, opts.Issuer, opts.Verifier, opts.Sessions,
		opts.Limiter, opts.Logger, opts.Metrics, opts.LoginRateLimit, opts.LoginRateWindow)
	authHandlers.RegisterRoutes(s.router, opts.Guard)

	adminHandlers := NewAdminHandlers(opts.DB, opts.Logger)
	adminHandlers.RegisterRoutes(s.router, opts.Guard)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware(opts.Logger),
	}
	if len(opts.CORSOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(opts.CORSOrigins))
	}
	if opts.Metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(opts.Metrics))
	}

	handler := httputil.Chain(middlewares...)(s.router)
	if opts.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "skillgate-api")
	}
	s.handler = handler

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional route registration.
func (s *Server) Router() *mux.Router {
	return s.router
}
