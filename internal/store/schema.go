// Package store provides the SQL persistence layer for clients, sessions, and
// records. SQLite is the default backend; a postgres:// DSN selects Postgres.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	display_name    TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	provenance      TEXT NOT NULL DEFAULT 'manual',
	created_at      DATETIME NOT NULL,
	deleted_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_clients_tenant_name ON clients(tenant_id, normalized_name);

CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	client_id         TEXT NOT NULL REFERENCES clients(id),
	scheduled_at      DATETIME NOT NULL,
	duration_seconds  INTEGER NOT NULL DEFAULT 0,
	external_event_id TEXT,
	provenance        TEXT NOT NULL DEFAULT 'manual',
	created_at        DATETIME NOT NULL,
	deleted_at        DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_external_event
	ON sessions(tenant_id, external_event_id)
	WHERE external_event_id IS NOT NULL AND deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_sessions_client ON sessions(tenant_id, client_id, scheduled_at);

CREATE TABLE IF NOT EXISTS records (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	kind                TEXT NOT NULL,
	client_id           TEXT REFERENCES clients(id),
	session_id          TEXT REFERENCES sessions(id),
	explicit_session_id TEXT,
	date_hint           DATETIME,
	date_hint_has_time  BOOLEAN NOT NULL DEFAULT 0,
	link_status         TEXT NOT NULL DEFAULT 'unlinked',
	review_reason       TEXT NOT NULL DEFAULT '',
	source              TEXT NOT NULL DEFAULT '',
	checksum            TEXT NOT NULL DEFAULT '',
	candidate_name      TEXT NOT NULL DEFAULT '',
	content             BLOB,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_checksum
	ON records(tenant_id, checksum)
	WHERE checksum <> '';
CREATE INDEX IF NOT EXISTS idx_records_unlinked ON records(tenant_id, session_id);
`

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	display_name    TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	provenance      TEXT NOT NULL DEFAULT 'manual',
	created_at      TIMESTAMPTZ NOT NULL,
	deleted_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_clients_tenant_name ON clients(tenant_id, normalized_name);

CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	client_id         TEXT NOT NULL REFERENCES clients(id),
	scheduled_at      TIMESTAMPTZ NOT NULL,
	duration_seconds  BIGINT NOT NULL DEFAULT 0,
	external_event_id TEXT,
	provenance        TEXT NOT NULL DEFAULT 'manual',
	created_at        TIMESTAMPTZ NOT NULL,
	deleted_at        TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_external_event
	ON sessions(tenant_id, external_event_id)
	WHERE external_event_id IS NOT NULL AND deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_sessions_client ON sessions(tenant_id, client_id, scheduled_at);

CREATE TABLE IF NOT EXISTS records (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	kind                TEXT NOT NULL,
	client_id           TEXT REFERENCES clients(id),
	session_id          TEXT REFERENCES sessions(id),
	explicit_session_id TEXT,
	date_hint           TIMESTAMPTZ,
	date_hint_has_time  BOOLEAN NOT NULL DEFAULT FALSE,
	link_status         TEXT NOT NULL DEFAULT 'unlinked',
	review_reason       TEXT NOT NULL DEFAULT '',
	source              TEXT NOT NULL DEFAULT '',
	checksum            TEXT NOT NULL DEFAULT '',
	candidate_name      TEXT NOT NULL DEFAULT '',
	content             BYTEA,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_checksum
	ON records(tenant_id, checksum)
	WHERE checksum <> '';
CREATE INDEX IF NOT EXISTS idx_records_unlinked ON records(tenant_id, session_id);
`

// DB wraps a sql.DB with reconciliation-specific persistence operations.
type DB struct {
	conn     *sql.DB
	postgres bool
}

// Open opens (or creates) the database named by dsn and applies the schema.
// A postgres:// or postgresql:// URL selects Postgres; anything else is a
// SQLite file path (an optional sqlite:// prefix is stripped).
func Open(dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("store: empty dsn")
	}

	scheme := ""
	if parsed, err := url.Parse(dsn); err == nil {
		scheme = strings.ToLower(parsed.Scheme)
	}

	switch scheme {
	case "postgres", "postgresql":
		return open("postgres", dsn, postgresSchemaSQL, true)
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, scheme+"://"), scheme+":")
		return openSQLite(path)
	default:
		return openSQLite(dsn)
	}
}

func openSQLite(path string) (*DB, error) {
	db, err := open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", sqliteSchemaSQL, false)
	if err != nil {
		return nil, err
	}
	// One writer at a time; keeps deferred transactions from failing with SQLITE_BUSY.
	db.conn.SetMaxOpenConns(1)
	return db, nil
}

func open(driver, dsn, schema string, postgres bool) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, postgres: postgres}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// q rewrites ?-placeholders to $n for Postgres.
func (db *DB) q(query string) string {
	if !db.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
