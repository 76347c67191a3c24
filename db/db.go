// Package db persists the verifier's chain-of-custody state: one row per
// verified block's ChainValidityCondition, plus the last processed
// height, so a restarted verifier resumes instead of re-walking the
// chain from genesis.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite connection opened against modernc.org/sqlite.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if necessary) a SQLite database at path in WAL
// mode and runs any pending migrations. path may be ":memory:" for an
// ephemeral database, commonly used in tests.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %q: %w", path, err)
	}

	if path == ":memory:" {
		// A shared-cache in-memory database is still a single logical
		// database only as long as every query goes through the same
		// connection; SQLite tears it down once the last connection
		// using it closes.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: ping %q: %w", path, err)
	}

	d := &DB{conn: conn, path: path}

	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// migrate applies every embedded migration file not yet recorded in
// schema_migrations, in filename order. golang-migrate's own sqlite3
// driver (database/sqlite3) only works against github.com/mattn/go-sqlite3
// connections — it reaches into the driver's internal *sqlite3.SQLiteConn
// to run its locking pragmas — so it can't drive a modernc.org/sqlite
// *sql.DB. Rather than add a second, cgo-based SQLite driver purely to
// satisfy golang-migrate, migrations are applied with a small
// version-tracking runner against the same plain database/sql handle
// everything else in this package uses.
func (d *DB) migrate() error {
	if _, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("db: create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("db: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		versionStr, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(versionStr)
		if err != nil {
			return fmt.Errorf("db: migration %q has no numeric prefix", entry.Name())
		}

		var applied int
		row := d.conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version)
		if err := row.Scan(&applied); err != nil {
			return fmt.Errorf("db: check migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("db: read migration %s: %w", entry.Name(), err)
		}

		tx, err := d.conn.Begin()
		if err != nil {
			return fmt.Errorf("db: begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: apply migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, unixepoch())`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("db: commit migration %d: %w", version, err)
		}
	}

	return nil
}
