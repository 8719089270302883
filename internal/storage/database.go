package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables and seeds
// the default shelf. It is idempotent and can be run multiple times safely.
//
// Dates are stored as Unix epoch milliseconds; nullable columns model the
// optional node attributes (parent_id, todo_state, content_modified) and
// the archive binary marker (byte_length).
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			parent_id INTEGER,
			type INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			uri TEXT NOT NULL DEFAULT '',
			pos INTEGER NOT NULL DEFAULT 2147483647,
			tags TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			contains TEXT NOT NULL DEFAULT '',
			todo_state INTEGER,
			todo_date TEXT NOT NULL DEFAULT '',
			external TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			stored_icon INTEGER NOT NULL DEFAULT 0,
			has_notes INTEGER NOT NULL DEFAULT 0,
			has_comments INTEGER NOT NULL DEFAULT 0,
			date_added INTEGER NOT NULL DEFAULT 0,
			date_modified INTEGER NOT NULL DEFAULT 0,
			content_modified INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_parent_id ON nodes(parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_external ON nodes(external, external_id);`,
		`CREATE TABLE IF NOT EXISTS archives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			object BLOB,
			byte_length INTEGER,
			type TEXT NOT NULL DEFAULT 'text/html'
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			content TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL DEFAULT '',
			html TEXT NOT NULL DEFAULT '',
			align TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			text TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS icons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			data_url TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS index_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			words TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS index_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			words TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS index_comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id INTEGER NOT NULL UNIQUE,
			words TEXT NOT NULL DEFAULT '[]'
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return seedDefaultShelf(db)
}

// seedDefaultShelf inserts the default shelf on first migration. The shelf
// always has id 1 and uuid "1"; portable formats rename the uuid.
func seedDefaultShelf(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM nodes WHERE id = ?", DefaultShelfID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	_, err := db.Exec(
		`INSERT INTO nodes (id, uuid, type, name, pos, date_added, date_modified)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		DefaultShelfID, DefaultShelfUUID, NodeTypeShelf, DefaultShelfName, now, now,
	)
	return err
}
