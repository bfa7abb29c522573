package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		access_token_hash TEXT NOT NULL,
		refresh_token_hash TEXT NOT NULL,
		issued_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	);
	`)
	require.NoError(t, err)
	return db
}

func newSession(principalID, access, refresh string, expiresAt time.Time) *Session {
	return &Session{
		PrincipalID:      principalID,
		AccessTokenHash:  HashToken(access),
		RefreshTokenHash: HashToken(refresh),
		ExpiresAt:        expiresAt,
		IP:               "203.0.113.9",
		UserAgent:        "test-agent",
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))
	ctx := context.Background()

	s := newSession("u1", "access-1", "refresh-1", time.Now().Add(time.Hour).UTC())
	require.NoError(t, reg.Create(ctx, s))
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.IssuedAt.IsZero())

	got, err := reg.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.PrincipalID, got.PrincipalID)
	assert.Equal(t, s.AccessTokenHash, got.AccessTokenHash)
	assert.Equal(t, s.RefreshTokenHash, got.RefreshTokenHash)
	assert.Equal(t, "203.0.113.9", got.IP)
	assert.Equal(t, "test-agent", got.UserAgent)
}

func TestRegistryGetNotFound(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))

	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryGetByToken(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))
	ctx := context.Background()

	s := newSession("u1", "access-1", "refresh-1", time.Now().Add(time.Hour).UTC())
	require.NoError(t, reg.Create(ctx, s))

	got, err := reg.GetByAccessToken(ctx, "access-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	got, err = reg.GetByRefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = reg.GetByAccessToken(ctx, "refresh-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// only digests are persisted
	var stored string
	require.NoError(t, reg.db.QueryRow(`SELECT access_token_hash FROM sessions WHERE id = $1`, s.ID).Scan(&stored))
	assert.Equal(t, HashToken("access-1"), stored)
	assert.NotEqual(t, "access-1", stored)
}

func TestRegistryDeleteByID(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))
	ctx := context.Background()

	s := newSession("u1", "a", "r", time.Now().Add(time.Hour).UTC())
	require.NoError(t, reg.Create(ctx, s))

	require.NoError(t, reg.DeleteByID(ctx, s.ID))

	_, err := reg.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, reg.DeleteByID(ctx, s.ID), ErrNotFound)
}

func TestRegistryDeleteAllForPrincipal(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).UTC()

	require.NoError(t, reg.Create(ctx, newSession("u1", "a1", "r1", exp)))
	require.NoError(t, reg.Create(ctx, newSession("u1", "a2", "r2", exp)))
	other := newSession("u2", "a3", "r3", exp)
	require.NoError(t, reg.Create(ctx, other))

	n, err := reg.DeleteAllForPrincipal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = reg.Get(ctx, other.ID)
	assert.NoError(t, err)
}

// IsExpired must not remove the row; cleanup is the sweeper's job.
func TestRegistryIsExpiredIsPure(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))
	ctx := context.Background()

	live := newSession("u1", "a1", "r1", time.Now().Add(time.Hour).UTC())
	require.NoError(t, reg.Create(ctx, live))
	lapsed := newSession("u1", "a2", "r2", time.Now().Add(-time.Hour).UTC())
	require.NoError(t, reg.Create(ctx, lapsed))

	expired, err := reg.IsExpired(ctx, live.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	expired, err = reg.IsExpired(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	// the expired row is still there
	_, err = reg.Get(ctx, lapsed.ID)
	assert.NoError(t, err)
}

func TestRegistryDeleteExpired(t *testing.T) {
	reg := NewSQLRegistry(setupSessionDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	live := newSession("u1", "a1", "r1", now.Add(time.Hour))
	require.NoError(t, reg.Create(ctx, live))
	require.NoError(t, reg.Create(ctx, newSession("u1", "a2", "r2", now.Add(-time.Hour))))
	require.NoError(t, reg.Create(ctx, newSession("u2", "a3", "r3", now.Add(-time.Minute))))

	n, err := reg.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = reg.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestRegistryCreateStorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("connection refused"))

	reg := NewSQLRegistry(db)
	err = reg.Create(context.Background(), newSession("u1", "a", "r", time.Now().Add(time.Hour)))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session")
	assert.NoError(t, mock.ExpectationsWereMet())
}
