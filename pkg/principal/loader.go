package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Loader resolves a principal id into a hydrated Principal. Implementations
// must read fresh state on every call; role or permission revocations take
// effect on the next request, so snapshots must never be cached across
// requests.
type Loader interface {
	Load(ctx context.Context, principalID string) (*Principal, error)
}

// SQLLoader loads principals from the relational store.
type SQLLoader struct {
	db *sql.DB
}

// NewSQLLoader creates a loader backed by the given database handle.
func NewSQLLoader(db *sql.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

// Load fetches the user row, its role names, and the union of permissions
// granted through those roles. Returns ErrNotFound when the id does not
// exist or the user has been deactivated.
func (l *SQLLoader) Load(ctx context.Context, principalID string) (*Principal, error) {
	var email string
	var active bool
	err := l.db.QueryRowContext(ctx,
		`SELECT email, is_active FROM users WHERE id = $1`,
		principalID,
	).Scan(&email, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user %s: %w", principalID, err)
	}
	if !active {
		return nil, ErrNotFound
	}

	roles, err := l.loadRoles(ctx, principalID)
	if err != nil {
		return nil, err
	}
	perms, err := l.loadPermissions(ctx, principalID)
	if err != nil {
		return nil, err
	}

	return New(principalID, email, roles, perms), nil
}

func (l *SQLLoader) loadRoles(ctx context.Context, principalID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT r.name
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles for %s: %w", principalID, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (l *SQLLoader) loadPermissions(ctx context.Context, principalID string) ([]Permission, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT a.name, o.name
		 FROM user_roles ur
		 JOIN role_permissions rp ON rp.role_id = ur.role_id
		 JOIN permissions p ON p.id = rp.permission_id
		 JOIN assets a ON a.id = p.asset_id
		 JOIN operations o ON o.id = p.operation_id
		 WHERE ur.user_id = $1`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for %s: %w", principalID, err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var resource, action string
		if err := rows.Scan(&resource, &action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, Permission{Resource: resource, Action: action})
	}
	return perms, rows.Err()
}
