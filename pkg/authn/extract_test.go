package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialFromRequestHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	cred, ok := CredentialFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "abc123", cred)
}

func TestCredentialFromRequestCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	cred, ok := CredentialFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "cookie-token", cred)
}

func TestCredentialFromRequestHeaderWinsOverCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	cred, ok := CredentialFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "header-token", cred)
}

func TestCredentialFromRequestMalformedHeaderDoesNotFallBack(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "NotBearer header-token")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	_, ok := CredentialFromRequest(r)
	assert.False(t, ok)
}

func TestCredentialFromRequestMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := CredentialFromRequest(r)
	assert.False(t, ok)
}
