package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoAccessibleInstance indicates the principal is not linked to any
// instance of the requested asset type.
var ErrNoAccessibleInstance = errors.New("no accessible asset instance")

// AssetInstance is one concrete object of an asset type that a principal has
// been granted access to.
type AssetInstance struct {
	ID        string
	AssetID   int64
	AssetName string
}

// InstanceStore looks up asset instances reachable by a principal.
type InstanceStore interface {
	// FindAccessible returns an instance of the named asset linked to the
	// principal, or ErrNoAccessibleInstance when no link exists.
	//
	// The lookup is deliberately coarse: it answers "does the principal
	// have ANY instance of this asset type", not "does the principal have
	// THIS instance". Route handlers that need per-object scoping must
	// compare the resolved instance against the request themselves.
	FindAccessible(ctx context.Context, principalID, assetName string) (*AssetInstance, error)
}

// SQLInstanceStore resolves instance grants from the relational store.
type SQLInstanceStore struct {
	db *sql.DB
}

// NewSQLInstanceStore creates a store backed by the given database handle.
func NewSQLInstanceStore(db *sql.DB) *SQLInstanceStore {
	return &SQLInstanceStore{db: db}
}

// FindAccessible implements InstanceStore. When the principal is linked to
// several instances of the asset an arbitrary one is returned.
func (s *SQLInstanceStore) FindAccessible(ctx context.Context, principalID, assetName string) (*AssetInstance, error) {
	var inst AssetInstance
	err := s.db.QueryRowContext(ctx,
		`SELECT ai.id, ai.asset_id, a.name
		 FROM user_asset_instances uai
		 JOIN asset_instances ai ON ai.id = uai.asset_instance_id
		 JOIN assets a ON a.id = ai.asset_id
		 WHERE uai.user_id = $1 AND a.name = $2
		 LIMIT 1`,
		principalID, assetName,
	).Scan(&inst.ID, &inst.AssetID, &inst.AssetName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoAccessibleInstance
		}
		return nil, fmt.Errorf("failed to look up instance of %s for %s: %w", assetName, principalID, err)
	}
	return &inst, nil
}
