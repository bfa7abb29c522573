package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skillgate/skillgate/pkg/observability"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full schema history in apply order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "users, roles, and the role/permission grant tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS user_roles (
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, role_id)
				);

				CREATE TABLE IF NOT EXISTS assets (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS operations (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					asset_id BIGINT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
					operation_id BIGINT NOT NULL REFERENCES operations(id) ON DELETE CASCADE,
					UNIQUE (asset_id, operation_id)
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);
			`,
		},
		{
			Version:     2,
			Description: "asset instances and per-user instance grants",
			SQL: `
				CREATE TABLE IF NOT EXISTS asset_instances (
					id TEXT PRIMARY KEY,
					asset_id BIGINT NOT NULL REFERENCES assets(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS user_asset_instances (
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					asset_instance_id TEXT NOT NULL REFERENCES asset_instances(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, asset_instance_id)
				);

				CREATE INDEX IF NOT EXISTS idx_asset_instances_asset ON asset_instances(asset_id);
			`,
		},
		{
			Version:     3,
			Description: "session registry",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					access_token_hash TEXT NOT NULL,
					refresh_token_hash TEXT NOT NULL,
					issued_at TIMESTAMPTZ NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL,
					ip TEXT NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT ''
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_access_hash ON sessions(access_token_hash);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_refresh_hash ON sessions(refresh_token_hash);
				CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
				CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
			`,
		},
	}
}

// RunMigrations applies every pending migration in version order, each in
// its own transaction, and records it in schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, migrations []Migration, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).
			WithField("description", migration.Description).
			Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction for migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
