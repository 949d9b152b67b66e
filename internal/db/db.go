// Package db persists the metadata registry snapshot and per-source sync
// history in SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database holding the persisted registry snapshot.
type DB struct {
	conn *sql.DB
	path string
}

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are applied in order, each in its own transaction.
var migrations = []migration{
	{1, "bundle metadata snapshot", []string{
		`CREATE TABLE bundle_metadata (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			author TEXT,
			description TEXT,
			error TEXT,
			last_updated INTEGER NOT NULL,
			doc TEXT NOT NULL,          -- full record in wire format
			position INTEGER NOT NULL,  -- registry iteration order
			stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX idx_bundle_metadata_position ON bundle_metadata(position)`,
	}},
	{2, "source sync history", []string{
		`CREATE TABLE sync_sources (
			url TEXT PRIMARY KEY,
			last_synced_at INTEGER NOT NULL, -- unix seconds
			entries INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		)`,
	}},
}

// Open opens or creates a SQLite database at the given path and brings its
// schema up to date.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := otelsql.Open("sqlite", path+"?_pragma=busy_timeout(5000)",
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer at a time
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: path}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Path() string {
	return db.path
}

// SchemaVersion returns the highest applied migration.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)",
	); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}
