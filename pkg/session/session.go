// Package session implements the durable registry of issued credential
// pairs. A session row is created at login and removed at logout, on
// rotation, or by the sweeper; rows are never updated in place.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session records one issued access/refresh pair. Only sha256 digests of the
// tokens are stored; the plaintext never touches the database.
type Session struct {
	ID               string
	PrincipalID      string
	AccessTokenHash  string
	RefreshTokenHash string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	IP               string
	UserAgent        string
}

// Expired reports whether the session has lapsed as of now. This is a pure
// comparison: expired rows stay in storage until the sweeper or an explicit
// delete removes them.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// HashToken derives the storable digest of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
