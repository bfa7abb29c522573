package authn

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-signing")

func testIssuer() *Issuer {
	return NewIssuer(testSecret, "skillgate-test", 15*time.Minute, 24*time.Hour)
}

func TestVerifyIssuedToken(t *testing.T) {
	pair, err := testIssuer().Issue("u1", "u1@example.com")
	require.NoError(t, err)

	v := NewVerifier(testSecret)
	claims, err := v.Verify(pair.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "u1@example.com", claims.Email)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	pair, err := testIssuer().Issue("u1", "u1@example.com")
	require.NoError(t, err)

	v := NewVerifier([]byte("a-different-secret"))
	_, err = v.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	pair, err := testIssuer().Issue("u1", "u1@example.com")
	require.NoError(t, err)

	v := NewVerifier(testSecret)
	v.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	_, err = v.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier(testSecret)

	for _, raw := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		_, err := v.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidCredential, "raw=%q", raw)
	}
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := NewVerifier(testSecret)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := token.SignedString(testSecret)
	require.NoError(t, err)

	v := NewVerifier(testSecret)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyTypeRejectsRefreshAsAccess(t *testing.T) {
	pair, err := testIssuer().Issue("u1", "u1@example.com")
	require.NoError(t, err)

	v := NewVerifier(testSecret)

	_, err = v.VerifyType(pair.RefreshToken, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	claims, err := v.VerifyType(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
}

func TestIssuePairExpiries(t *testing.T) {
	pair, err := testIssuer().Issue("u1", "u1@example.com")
	require.NoError(t, err)

	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
}
