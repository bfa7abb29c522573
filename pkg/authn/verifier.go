// Package authn implements credential verification and the authenticator
// middleware: extract a bearer token, verify it, load the principal, and
// attach the principal to the request context. Every failure along that path
// collapses into one generic 401 response so the boundary never reveals
// whether a credential was malformed, expired, or referenced a deleted user.
package authn

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values. Refresh tokens are only accepted by the refresh
// endpoint, never by the authenticator.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidCredential is returned for every verification failure mode:
// bad signature, expired, malformed, wrong algorithm, missing subject.
// Callers must not branch on the underlying cause.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims is the payload of a skillgate-issued token.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials. Verification is pure: no clocks
// besides the injected one, no storage access, no side effects.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for HS256 tokens signed with secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// Verify checks the signature and expiry of raw and returns its claims.
// All failures map to ErrInvalidCredential.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// VerifyType verifies raw and additionally requires the token_type claim to
// match tokenType.
func (v *Verifier) VerifyType(raw, tokenType string) (*Claims, error) {
	claims, err := v.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
