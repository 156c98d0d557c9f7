package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool and is the entry point for database access.
type DB struct {
	pool *pgxpool.Pool
}

// Config holds database connection settings.
type Config struct {
	DSN string

	// With PgBouncer in front, these can be relatively low per replica.
	MaxConns int32
	MinConns int32
}

// New creates a DB from the given configuration and verifies connectivity.
func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Bootstrap creates the schema if it does not exist yet.
func (db *DB) Bootstrap(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Credentials returns the credential store backed by this pool.
func (db *DB) Credentials() *CredentialStore {
	return &CredentialStore{pool: db.pool}
}

// Meetings returns the meeting store backed by this pool.
func (db *DB) Meetings() *MeetingStore {
	return &MeetingStore{pool: db.pool}
}
