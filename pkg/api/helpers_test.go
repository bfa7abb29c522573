package api

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillgate/skillgate/pkg/authn"
	"github.com/skillgate/skillgate/pkg/authz"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/principal"
	"github.com/skillgate/skillgate/pkg/ratelimit"
	"github.com/skillgate/skillgate/pkg/session"
)

var apiTestSecret = []byte("api-test-secret-0123456789abcdef")

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A second connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1
	);
	CREATE TABLE roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE user_roles (
		user_id TEXT NOT NULL,
		role_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, role_id)
	);
	CREATE TABLE assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id INTEGER NOT NULL,
		operation_id INTEGER NOT NULL,
		UNIQUE (asset_id, operation_id)
	);
	CREATE TABLE role_permissions (
		role_id INTEGER NOT NULL,
		permission_id INTEGER NOT NULL,
		PRIMARY KEY (role_id, permission_id)
	);
	CREATE TABLE asset_instances (
		id TEXT PRIMARY KEY,
		asset_id INTEGER NOT NULL
	);
	CREATE TABLE user_asset_instances (
		user_id TEXT NOT NULL,
		asset_instance_id TEXT NOT NULL,
		PRIMARY KEY (user_id, asset_instance_id)
	);
	CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		access_token_hash TEXT NOT NULL UNIQUE,
		refresh_token_hash TEXT NOT NULL UNIQUE,
		issued_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

func seedUser(t *testing.T, db *sql.DB, id, email, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	mustExec(t, db, `INSERT INTO users (id, email, password_hash, is_active) VALUES ($1, $2, $3, $4)`,
		id, email, string(hash), active)
}

func seedRole(t *testing.T, db *sql.DB, userID, role string) {
	t.Helper()
	mustExec(t, db, `INSERT OR IGNORE INTO roles (name) VALUES ($1)`, role)
	mustExec(t, db, `INSERT OR IGNORE INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2`, userID, role)
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

// fakeLimiter is a Limiter with a fixed verdict.
type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
	resets  int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error) {
	f.calls++
	if f.err != nil {
		return ratelimit.Decision{}, f.err
	}
	return ratelimit.Decision{
		Allowed: f.allowed,
		Limit:   limit,
		ResetAt: time.Now().Add(window),
	}, nil
}

func (f *fakeLimiter) Reset(ctx context.Context, key string) error {
	f.resets++
	return nil
}

type testEnv struct {
	server   *Server
	db       *sql.DB
	guard    *authz.Guard
	issuer   *authn.Issuer
	sessions session.Registry
	limiter  *fakeLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	logger := testLogger()

	verifier := authn.NewVerifier(apiTestSecret)
	issuer := authn.NewIssuer(apiTestSecret, "skillgate-test", 15*time.Minute, time.Hour)
	loader := principal.NewSQLLoader(db)
	auth := authn.NewAuthenticator(verifier, loader, logger, nil)
	authorizer := authz.NewAuthorizer(authz.NewSQLInstanceStore(db), logger, nil)
	guard := authz.NewGuard(auth, authorizer)
	sessions := session.NewSQLRegistry(db)
	limiter := &fakeLimiter{allowed: true}

	server := NewServer(Options{
		DB:              db,
		Guard:           guard,
		Issuer:          issuer,
		Verifier:        verifier,
		Sessions:        sessions,
		Limiter:         limiter,
		Logger:          logger,
		LoginRateLimit:  5,
		LoginRateWindow: time.Minute,
	})

	return &testEnv{
		server:   server,
		db:       db,
		guard:    guard,
		issuer:   issuer,
		sessions: sessions,
		limiter:  limiter,
	}
}
