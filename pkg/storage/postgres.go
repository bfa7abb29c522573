// Package storage manages the backing stores: the PostgreSQL pool holding
// users, grants and sessions, the Redis client used by the rate limiter, and
// the schema migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds the relational store configuration.
//
// All authorization reads go to the single primary. Replica reads are
// intentionally not supported: revocations must be visible on the very next
// request, and replication lag would reintroduce the stale-grant window the
// per-request loading model exists to close.
type Config struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultConfig returns pool settings suitable for a small deployment.
func DefaultConfig(url string) Config {
	return Config{
		URL:         url,
		MaxConns:    25,
		MinConns:    5,
		Timeout:     10 * time.Second,
		MaxLifetime: 5 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// OpenPostgres opens the pool, applies the pool settings, and verifies the
// connection with a ping bounded by config.Timeout.
func OpenPostgres(config Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}
