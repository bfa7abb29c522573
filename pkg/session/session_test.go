package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionExpired(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: exp}

	assert.False(t, s.Expired(exp.Add(-time.Second)))
	assert.True(t, s.Expired(exp))
	assert.True(t, s.Expired(exp.Add(time.Second)))
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	h3 := HashToken("other-token")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "some-token")
}
