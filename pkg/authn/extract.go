package authn

import (
	"net/http"
	"strings"
)

// CookieName is the fallback credential cookie.
const CookieName = "token"

// CredentialFromRequest extracts the bearer credential from the request.
// The Authorization header takes precedence: when it is present, its value
// decides the outcome and the cookie is never consulted, even if the header
// is malformed. The cookie is only read when no Authorization header exists.
func CredentialFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}

	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}
