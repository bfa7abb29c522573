package api

import (
	"database/sql"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillgate/skillgate/pkg/authn"
	"github.com/skillgate/skillgate/pkg/authz"
	"github.com/skillgate/skillgate/pkg/httputil"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/ratelimit"
	"github.com/skillgate/skillgate/pkg/session"
)

// invalidLoginMessage is returned for every failed login. Unknown email,
// wrong password, and deactivated account are indistinguishable to the
// caller; the cause is only logged.
const invalidLoginMessage = "Invalid email or password"

// AuthHandlers handles credential issuance and session lifecycle requests.
type AuthHandlers struct {
	db       *sql.DB
	issuer   *authn.Issuer
	verifier *authn.Verifier
	sessions session.Registry
	limiter  ratelimit.Limiter
	logger   *observability.Logger
	metrics  *observability.Metrics

	loginLimit  int
	loginWindow time.Duration
}

// NewAuthHandlers creates a new auth handlers instance. metrics may be nil.
func NewAuthHandlers(db *sql.DB, issuer *authn.Issuer, verifier *authn.Verifier,
	sessions session.Registry, limiter ratelimit.Limiter, logger *observability.Logger,
	metrics *observability.Metrics, loginLimit int, loginWindow time.Duration) *AuthHandlers {
	return &AuthHandlers{
		db:          db,
		issuer:      issuer,
		verifier:    verifier,
		sessions:    sessions,
		limiter:     limiter,
		logger:      logger,
		metrics:     metrics,
		loginLimit:  loginLimit,
		loginWindow: loginWindow,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, guard *authz.Guard) {
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/refresh", h.refresh).Methods("POST")

	router.Handle("/auth/logout", guard.Authenticated(http.HandlerFunc(h.logout))).Methods("POST")
	router.Handle("/auth/logout-all", guard.Authenticated(http.HandlerFunc(h.logoutAll))).Methods("POST")
	router.Handle("/auth/whoami", guard.Authenticated(http.HandlerFunc(h.whoami))).Methods("GET")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	limiterKey := "login:" + clientIP(r)
	decision, err := h.limiter.Allow(r.Context(), limiterKey, h.loginLimit, h.loginWindow)
	if err != nil {
		// Fail open when the limiter backend is unavailable.
		h.logger.WithError(err).Warn("rate limiter unavailable, allowing login attempt")
	} else if !decision.Allowed {
		if h.metrics != nil {
			h.metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
			h.metrics.RateLimitRejectionsTotal.Inc()
		}
		retryAfter := int(time.Until(decision.ResetAt).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httputil.WriteTooManyRequests(w, "Too many login attempts")
		return
	}

	var (
		userID       string
		passwordHash string
		isActive     bool
	)
	err = h.db.QueryRowContext(r.Context(),
		`SELECT id, password_hash, is_active FROM users WHERE email = $1`,
		req.Email,
	).Scan(&userID, &passwordHash, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		h.rejectLogin(w, req.Email, "unknown email")
		return
	}
	if err != nil {
		h.internalError(w, err, "login user lookup failed")
		return
	}
	if !isActive {
		h.rejectLogin(w, req.Email, "deactivated account")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		h.rejectLogin(w, req.Email, "password mismatch")
		return
	}

	pair, err := h.issuer.Issue(userID, req.Email)
	if err != nil {
		h.internalError(w, err, "token issuance failed")
		return
	}

	sess := &session.Session{
		PrincipalID:      userID,
		AccessTokenHash:  session.HashToken(pair.AccessToken),
		RefreshTokenHash: session.HashToken(pair.RefreshToken),
		ExpiresAt:        pair.RefreshExpiresAt,
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
	}
	if err := h.sessions.Create(r.Context(), sess); err != nil {
		h.countSessionOp("create", "error")
		h.internalError(w, err, "session creation failed")
		return
	}
	h.countSessionOp("create", "success")

	if err := h.limiter.Reset(r.Context(), limiterKey); err != nil {
		h.logger.WithError(err).Warn("rate limit reset failed after login")
	}
	if h.metrics != nil {
		h.metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	}

	h.setTokenCookie(w, pair)
	httputil.WriteSuccess(w, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RefreshToken, "refresh_token") {
		return
	}

	claims, err := h.verifier.VerifyType(req.RefreshToken, authn.TokenTypeRefresh)
	if err != nil {
		h.rejectRefresh(w, "credential verification failed")
		return
	}

	sess, err := h.sessions.GetByRefreshToken(r.Context(), req.RefreshToken)
	if errors.Is(err, session.ErrNotFound) {
		h.rejectRefresh(w, "no session for credential")
		return
	}
	if err != nil {
		h.internalError(w, err, "session lookup failed")
		return
	}
	if sess.Expired(time.Now()) {
		h.rejectRefresh(w, "session expired")
		return
	}

	pair, err := h.issuer.Issue(claims.Subject, claims.Email)
	if err != nil {
		h.internalError(w, err, "token issuance failed")
		return
	}

	// Rotation: remove the old row and insert a new one. Session rows are
	// never updated in place.
	if err := h.sessions.DeleteByID(r.Context(), sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.countSessionOp("rotate", "error")
		h.internalError(w, err, "session rotation failed")
		return
	}
	next := &session.Session{
		PrincipalID:      sess.PrincipalID,
		AccessTokenHash:  session.HashToken(pair.AccessToken),
		RefreshTokenHash: session.HashToken(pair.RefreshToken),
		ExpiresAt:        pair.RefreshExpiresAt,
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
	}
	if err := h.sessions.Create(r.Context(), next); err != nil {
		h.countSessionOp("rotate", "error")
		h.internalError(w, err, "session rotation failed")
		return
	}
	h.countSessionOp("rotate", "success")

	h.setTokenCookie(w, pair)
	httputil.WriteSuccess(w, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// logout handles POST /auth/logout. The route is authenticated, so a valid
// credential is always present here.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	cred, ok := authn.CredentialFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sess, err := h.sessions.GetByAccessToken(r.Context(), cred)
	if errors.Is(err, session.ErrNotFound) {
		// Already gone; logout is idempotent.
		h.clearTokenCookie(w)
		httputil.WriteNoContent(w)
		return
	}
	if err != nil {
		h.internalError(w, err, "session lookup failed")
		return
	}

	if err := h.sessions.DeleteByID(r.Context(), sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.countSessionOp("delete", "error")
		h.internalError(w, err, "session delete failed")
		return
	}
	h.countSessionOp("delete", "success")

	h.clearTokenCookie(w)
	httputil.WriteNoContent(w)
}

// logoutAll handles POST /auth/logout-all
func (h *AuthHandlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}

	n, err := h.sessions.DeleteAllForPrincipal(r.Context(), p.ID)
	if err != nil {
		h.countSessionOp("delete_all", "error")
		h.internalError(w, err, "session delete failed")
		return
	}
	h.countSessionOp("delete_all", "success")

	h.clearTokenCookie(w)
	httputil.WriteSuccess(w, map[string]int64{"sessions_deleted": n})
}

type whoamiResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// whoami handles GET /auth/whoami
func (h *AuthHandlers) whoami(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}

	httputil.WriteSuccess(w, whoamiResponse{
		ID:          p.ID,
		Email:       p.Email,
		Roles:       p.Roles(),
		Permissions: p.Permissions(),
	})
}

func (h *AuthHandlers) rejectLogin(w http.ResponseWriter, email, reason string) {
	h.logger.WithField("email", email).
		WithField("reason", reason).
		Debug("login rejected")
	if h.metrics != nil {
		h.metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
	}
	httputil.WriteUnauthorized(w, invalidLoginMessage)
}

func (h *AuthHandlers) rejectRefresh(w http.ResponseWriter, reason string) {
	h.logger.WithField("reason", reason).Debug("refresh rejected")
	httputil.WriteUnauthorized(w, "Unauthorized")
}

func (h *AuthHandlers) internalError(w http.ResponseWriter, err error, msg string) {
	h.logger.WithError(err).Error(msg)
	httputil.WriteInternalError(w, errors.New("internal server error"))
}

func (h *AuthHandlers) countSessionOp(operation, result string) {
	if h.metrics != nil {
		h.metrics.SessionOpsTotal.WithLabelValues(operation, result).Inc()
	}
}

func (h *AuthHandlers) setTokenCookie(w http.ResponseWriter, pair authn.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     authn.CookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authn.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientIP returns the request's remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
