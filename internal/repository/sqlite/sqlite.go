// Package sqlite implements the repository interfaces on SQLite through the
// pure-Go modernc.org/sqlite driver, so the binary needs no C toolchain.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations. ":memory:" gives a
// private in-memory database, useful in tests.
//
// sql.Open only builds the pool; Ping forces the first connection so a bad
// path fails here instead of on the first query.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection to :memory: would be a different database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	// Off by default in SQLite; resonances and whispers cascade on delete.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS fragments (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			author          TEXT NOT NULL DEFAULT '',
			code            TEXT NOT NULL,
			technology      TEXT NOT NULL DEFAULT 'unknown',
			password_hash   TEXT NOT NULL,
			thumbnail_url   TEXT NOT NULL DEFAULT '',
			resonance_count INTEGER NOT NULL DEFAULT 0,
			whisper_count   INTEGER NOT NULL DEFAULT 0,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_fragments_created_at ON fragments(created_at);
		CREATE INDEX IF NOT EXISTS idx_fragments_technology ON fragments(technology);
	`)
	if err != nil {
		return fmt.Errorf("creating fragments table: %w", err)
	}

	// The primary key enforces one resonance per visitor and fragment.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS resonances (
			fragment_id TEXT NOT NULL REFERENCES fragments(id) ON DELETE CASCADE,
			visitor_id  TEXT NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (fragment_id, visitor_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating resonances table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS whispers (
			id          TEXT PRIMARY KEY,
			fragment_id TEXT NOT NULL REFERENCES fragments(id) ON DELETE CASCADE,
			author      TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_whispers_fragment ON whispers(fragment_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating whispers table: %w", err)
	}
	return nil
}

// clamp applies the list defaults: 20 rows, at most 100.
func clamp(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
