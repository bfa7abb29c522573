package principal

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
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

// seedGrant wires user -> role -> permission(asset, operation), creating any
// missing rows along the way.
func seedGrant(t *testing.T, db *sql.DB, userID, role, asset, operation string) {
	t.Helper()

	mustExec(t, db, `INSERT OR IGNORE INTO roles (name) VALUES ($1)`, role)
	mustExec(t, db, `INSERT OR IGNORE INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2`, userID, role)
	mustExec(t, db, `INSERT OR IGNORE INTO assets (name) VALUES ($1)`, asset)
	mustExec(t, db, `INSERT OR IGNORE INTO operations (name) VALUES ($1)`, operation)
	mustExec(t, db, `INSERT OR IGNORE INTO permissions (asset_id, operation_id)
		SELECT a.id, o.id FROM assets a, operations o WHERE a.name = $1 AND o.name = $2`,
		asset, operation)
	mustExec(t, db, `INSERT OR IGNORE INTO role_permissions (role_id, permission_id)
		SELECT r.id, p.id
		FROM roles r, permissions p
		JOIN assets a ON a.id = p.asset_id
		JOIN operations o ON o.id = p.operation_id
		WHERE r.name = $1 AND a.name = $2 AND o.name = $3`,
		role, asset, operation)
}

func TestSQLLoaderLoad(t *testing.T) {
	db := setupTestDB(t)
	loader := NewSQLLoader(db)

	mustExec(t, db, `INSERT INTO users (id, email) VALUES ('u1', 'u1@example.com')`)
	seedGrant(t, db, "u1", "Assessor", "competency", "read")
	seedGrant(t, db, "u1", "Reviewer", "competency", "read")
	seedGrant(t, db, "u1", "Reviewer", "report", "create")

	p, err := loader.Load(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "u1@example.com", p.Email)
	assert.Equal(t, []string{"Assessor", "Reviewer"}, p.Roles())

	// union across roles, duplicates collapsed
	assert.Equal(t, []string{"competency:read", "report:create"}, p.Permissions())
	assert.Equal(t, 2, p.PermissionCount())
}

func TestSQLLoaderLoadNotFound(t *testing.T) {
	db := setupTestDB(t)
	loader := NewSQLLoader(db)

	_, err := loader.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLLoaderLoadInactiveUser(t *testing.T) {
	db := setupTestDB(t)
	loader := NewSQLLoader(db)

	mustExec(t, db, `INSERT INTO users (id, email, is_active) VALUES ('u1', 'u1@example.com', 0)`)

	_, err := loader.Load(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLLoaderLoadNoRoles(t *testing.T) {
	db := setupTestDB(t)
	loader := NewSQLLoader(db)

	mustExec(t, db, `INSERT INTO users (id, email) VALUES ('u1', 'u1@example.com')`)

	p, err := loader.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, p.Roles())
	assert.Empty(t, p.Permissions())
}

func TestSQLLoaderRevocationVisibleOnNextLoad(t *testing.T) {
	db := setupTestDB(t)
	loader := NewSQLLoader(db)
	ctx := context.Background()

	mustExec(t, db, `INSERT INTO users (id, email) VALUES ('u1', 'u1@example.com')`)
	seedGrant(t, db, "u1", "Assessor", "competency", "read")

	p, err := loader.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.HasPermission(Permission{Resource: "competency", Action: "read"}))

	mustExec(t, db, `DELETE FROM user_roles WHERE user_id = 'u1'`)

	p, err = loader.Load(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, p.HasPermission(Permission{Resource: "competency", Action: "read"}))
	assert.Empty(t, p.Roles())
}
