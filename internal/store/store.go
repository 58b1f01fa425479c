// Package store is the SQLite data access layer for the codebase graph:
// files, scopes, symbols, edge candidates, imports, and the resolution
// tables the usage index is served from. The database lives in memory by
// default; a path may be given to persist it.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database, the default for an
// engine per the single-process in-memory design.
const MemoryPath = ":memory:"

// Store is the SQLite data access layer for the graph's 10 tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath. Use [MemoryPath] for an
// in-memory graph. On-disk databases get WAL mode.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=ON&_busy_timeout=30000"
	if dbPath != MemoryPath {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The in-memory database exists per connection; cap the pool at one
	// so every query sees the same graph.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions and by the
// query layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Extraction tables

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  module          TEXT NOT NULL DEFAULT '',
  hash            TEXT,
  line_count      INTEGER,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scopes (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  parent_scope_id INTEGER REFERENCES scopes(id),
  start_byte      INTEGER,
  end_byte        INTEGER
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope_id        INTEGER NOT NULL REFERENCES scopes(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  type_expr       TEXT NOT NULL DEFAULT '',
  exported        BOOLEAN NOT NULL DEFAULT FALSE,
  parent_symbol_id INTEGER REFERENCES symbols(id),
  start_byte      INTEGER,
  end_byte        INTEGER,
  name_start      INTEGER,
  name_end        INTEGER,
  start_line      INTEGER,
  start_col       INTEGER
);

CREATE TABLE IF NOT EXISTS refs (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope_id        INTEGER NOT NULL REFERENCES scopes(id),
  enclosing_symbol_id INTEGER REFERENCES symbols(id),
  name            TEXT NOT NULL,
  qualifier       TEXT NOT NULL DEFAULT '',
  context         TEXT NOT NULL,
  start_byte      INTEGER,
  end_byte        INTEGER,
  start_line      INTEGER,
  start_col       INTEGER,
  fail_reason     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  source          TEXT NOT NULL,
  imported_name   TEXT NOT NULL DEFAULT '',
  local_alias     TEXT NOT NULL DEFAULT '',
  kind            TEXT NOT NULL DEFAULT 'module',
  start_byte      INTEGER,
  end_byte        INTEGER,
  name_start      INTEGER,
  name_end        INTEGER
);

CREATE TABLE IF NOT EXISTS reexports (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  source          TEXT NOT NULL DEFAULT '',
  exported_name   TEXT NOT NULL,
  start_byte      INTEGER,
  end_byte        INTEGER
);

-- Resolution tables

CREATE TABLE IF NOT EXISTS resolved_refs (
  id              INTEGER PRIMARY KEY,
  ref_id          INTEGER NOT NULL REFERENCES refs(id),
  target_symbol_id INTEGER NOT NULL REFERENCES symbols(id),
  kind            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS import_bindings (
  id              INTEGER PRIMARY KEY,
  import_id       INTEGER NOT NULL REFERENCES imports(id),
  target_file_id  INTEGER NOT NULL REFERENCES files(id),
  target_symbol_id INTEGER REFERENCES symbols(id)
);

CREATE TABLE IF NOT EXISTS call_edges (
  id              INTEGER PRIMARY KEY,
  caller_symbol_id INTEGER REFERENCES symbols(id),
  callee_symbol_id INTEGER NOT NULL REFERENCES symbols(id),
  ref_id          INTEGER NOT NULL REFERENCES refs(id)
);

CREATE TABLE IF NOT EXISTS inherits (
  id              INTEGER PRIMARY KEY,
  class_symbol_id INTEGER NOT NULL REFERENCES symbols(id),
  parent_symbol_id INTEGER NOT NULL REFERENCES symbols(id),
  ref_id          INTEGER NOT NULL REFERENCES refs(id)
);

CREATE TABLE IF NOT EXISTS meta (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_files_module ON files(module);
CREATE INDEX IF NOT EXISTS idx_scopes_file ON scopes(file_id);
CREATE INDEX IF NOT EXISTS idx_scopes_parent ON scopes(parent_scope_id);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_scope ON symbols(scope_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_refs_file ON refs(file_id);
CREATE INDEX IF NOT EXISTS idx_refs_name ON refs(name);
CREATE INDEX IF NOT EXISTS idx_refs_scope ON refs(scope_id);
CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);
CREATE INDEX IF NOT EXISTS idx_imports_source ON imports(source);
CREATE INDEX IF NOT EXISTS idx_reexports_file ON reexports(file_id);
CREATE INDEX IF NOT EXISTS idx_resolved_refs_ref ON resolved_refs(ref_id);
CREATE INDEX IF NOT EXISTS idx_resolved_refs_target ON resolved_refs(target_symbol_id);
CREATE INDEX IF NOT EXISTS idx_import_bindings_import ON import_bindings(import_id);
CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges(caller_symbol_id);
CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(callee_symbol_id);
CREATE INDEX IF NOT EXISTS idx_inherits_class ON inherits(class_symbol_id);
CREATE INDEX IF NOT EXISTS idx_inherits_parent ON inherits(parent_symbol_id);
`

// DeleteFileData transactionally removes all data for a file across every
// table except the file record itself. Deletes in reverse-dependency
// order to respect FK constraints.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	symbolIDs, err := idsIn(tx, "SELECT id FROM symbols WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query symbols: %w", err)
	}
	refIDs, err := idsIn(tx, "SELECT id FROM refs WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query refs: %w", err)
	}
	importIDs, err := idsIn(tx, "SELECT id FROM imports WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query imports: %w", err)
	}

	// Resolution rows referencing this file's symbols or refs.
	if len(symbolIDs) > 0 {
		ph := placeholderList(len(symbolIDs))
		args := int64sToArgs(symbolIDs)
		for _, q := range []string{
			"DELETE FROM inherits WHERE class_symbol_id IN (" + ph + ") OR parent_symbol_id IN (" + ph + ")",
			"DELETE FROM call_edges WHERE caller_symbol_id IN (" + ph + ") OR callee_symbol_id IN (" + ph + ")",
			"DELETE FROM resolved_refs WHERE target_symbol_id IN (" + ph + ")",
			"DELETE FROM import_bindings WHERE target_symbol_id IN (" + ph + ")",
		} {
			expanded := args
			if countSubstring(q, "("+ph+")") > 1 {
				expanded = repeatArgs(args, 2)
			}
			if _, err := tx.Exec(q, expanded...); err != nil {
				return fmt.Errorf("delete resolution data for symbols: %w", err)
			}
		}
	}
	if len(refIDs) > 0 {
		ph := placeholderList(len(refIDs))
		args := int64sToArgs(refIDs)
		for _, q := range []string{
			"DELETE FROM inherits WHERE ref_id IN (" + ph + ")",
			"DELETE FROM call_edges WHERE ref_id IN (" + ph + ")",
			"DELETE FROM resolved_refs WHERE ref_id IN (" + ph + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete resolution data for refs: %w", err)
			}
		}
	}
	if len(importIDs) > 0 {
		ph := placeholderList(len(importIDs))
		args := int64sToArgs(importIDs)
		if _, err := tx.Exec("DELETE FROM import_bindings WHERE import_id IN ("+ph+")", args...); err != nil {
			return fmt.Errorf("delete import bindings: %w", err)
		}
	}
	if _, err := tx.Exec("DELETE FROM import_bindings WHERE target_file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete inbound import bindings: %w", err)
	}

	// Extraction rows for this file. Symbols before scopes for the FK.
	for _, q := range []string{
		"DELETE FROM reexports WHERE file_id = ?",
		"DELETE FROM imports WHERE file_id = ?",
		"DELETE FROM refs WHERE file_id = ?",
		"DELETE FROM symbols WHERE file_id = ?",
		"DELETE FROM scopes WHERE file_id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete extraction data: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteFile removes a file's data and its record.
func (s *Store) DeleteFile(fileID int64) error {
	if err := s.DeleteFileData(fileID); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// GetMetadata returns the value for a meta key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata upserts a meta key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

type execQuerier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// idsIn collects a single int64 column from a query.
func idsIn(q execQuerier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
