package authn

import (
	"context"
	"errors"
	"net/http"

	"github.com/skillgate/skillgate/pkg/contextkeys"
	"github.com/skillgate/skillgate/pkg/httputil"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/principal"
)

// unauthorizedMessage is the single body returned for every authentication
// failure. Missing credential, bad signature, expired token, and deleted
// principal are indistinguishable to the caller; the cause is only logged.
const unauthorizedMessage = "Unauthorized"

// Authenticator verifies the request credential and hydrates the principal
// snapshot for downstream authorization checks.
type Authenticator struct {
	verifier *Verifier
	loader   principal.Loader
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthenticator creates the authenticator middleware. metrics may be nil.
func NewAuthenticator(verifier *Verifier, loader principal.Loader, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
	}
}

// Middleware authenticates the request and attaches the principal to the
// context. The principal is loaded fresh on every request so grants and
// revocations take effect immediately.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := CredentialFromRequest(r)
		if !ok {
			a.reject(w, r, "missing or malformed credential")
			return
		}

		claims, err := a.verifier.VerifyType(cred, TokenTypeAccess)
		if err != nil {
			a.reject(w, r, "credential verification failed")
			return
		}

		p, err := a.loader.Load(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, principal.ErrNotFound) {
				a.reject(w, r, "principal no longer exists")
				return
			}
			a.logger.WithError(err).WithField("path", r.URL.Path).
				Error("principal load failed")
			if a.metrics != nil {
				a.metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
			}
			httputil.WriteInternalError(w, errors.New("internal server error"))
			return
		}

		if a.metrics != nil {
			a.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), p)))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, reason string) {
	a.logger.WithField("path", r.URL.Path).
		WithField("reason", reason).
		Debug("authentication rejected")
	if a.metrics != nil {
		a.metrics.AuthAttemptsTotal.WithLabelValues("rejected").Inc()
	}
	httputil.WriteUnauthorized(w, unauthorizedMessage)
}

// NewContext returns ctx with the principal attached.
func NewContext(ctx context.Context, p *principal.Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext retrieves the principal attached by Middleware.
func PrincipalFromContext(ctx context.Context) (*principal.Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*principal.Principal)
	return p, ok
}
