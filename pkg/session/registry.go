package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates no session matches the given id or token.
var ErrNotFound = errors.New("session not found")

// Registry is create/read/delete access to session rows.
type Registry interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByAccessToken(ctx context.Context, token string) (*Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error)
	IsExpired(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLRegistry is the relational Registry implementation.
type SQLRegistry struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLRegistry creates a registry backed by the given database handle.
func NewSQLRegistry(db *sql.DB) *SQLRegistry {
	return &SQLRegistry{db: db, now: time.Now}
}

// Create inserts the session. A missing ID is filled with a fresh UUID and a
// zero IssuedAt with the current time.
func (r *SQLRegistry) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, access_token_hash, refresh_token_hash, issued_at, expires_at, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.PrincipalID, s.AccessTokenHash, s.RefreshTokenHash,
		s.IssuedAt, s.ExpiresAt, s.IP, s.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get fetches a session by id.
func (r *SQLRegistry) Get(ctx context.Context, id string) (*Session, error) {
	return r.getWhere(ctx, "id", id)
}

// GetByAccessToken fetches the session whose access token digest matches the
// plaintext token.
func (r *SQLRegistry) GetByAccessToken(ctx context.Context, token string) (*Session, error) {
	return r.getWhere(ctx, "access_token_hash", HashToken(token))
}

// GetByRefreshToken fetches the session whose refresh token digest matches
// the plaintext token.
func (r *SQLRegistry) GetByRefreshToken(ctx context.Context, token string) (*Session, error) {
	return r.getWhere(ctx, "refresh_token_hash", HashToken(token))
}

func (r *SQLRegistry) getWhere(ctx context.Context, column, value string) (*Session, error) {
	var s Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, access_token_hash, refresh_token_hash, issued_at, expires_at, ip, user_agent
		 FROM sessions WHERE `+column+` = $1`,
		value,
	).Scan(&s.ID, &s.PrincipalID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.IssuedAt, &s.ExpiresAt, &s.IP, &s.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &s, nil
}

// DeleteByID removes one session. Deleting an already-absent session returns
// ErrNotFound.
func (r *SQLRegistry) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllForPrincipal removes every session of the principal and returns
// how many were deleted.
func (r *SQLRegistry) DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, principalID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for %s: %w", principalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for %s: %w", principalID, err)
	}
	return n, nil
}

// IsExpired reports whether the session has lapsed. It never deletes the
// row; cleanup belongs to the sweeper.
func (r *SQLRegistry) IsExpired(ctx context.Context, id string) (bool, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Expired(r.now()), nil
}

// DeleteExpired removes every session whose expiry is at or before now and
// returns how many rows were removed.
func (r *SQLRegistry) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return n, nil
}
