// Package dbopen opens the SQLite database clippy keeps its users, chat log,
// popup settings and audit log in.
//
// Every connection gets these pragmas:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// File databases carry them as _pragma DSN parameters, so connections the
// pool opens later get them too. They are also applied via EXEC on open.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/clippy.db", dbopen.WithMkdirAll(), dbopen.WithSchema(chat.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(chat.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

const driver = "sqlite"

var pragmas = [][2]string{
	{"foreign_keys", "ON"},
	{"journal_mode", "WAL"},
	{"busy_timeout", "10000"},
	{"synchronous", "NORMAL"},
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	q := make(url.Values)
	for _, p := range pragmas {
		q.Add("_pragma", p[0]+"("+p[1]+")")
	}
	return path + "?" + q.Encode()
}

type config struct {
	mkdirAll bool
	schemas  []string
}

// Option customises Open behaviour.
type Option func(*config)

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to run after the pragmas. Schemas run in the order
// given, inside one transaction: either all apply or none do.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens the database at path. The caller must blank-import the driver
// (modernc.org/sqlite registers "sqlite").
func Open(path string, opts ...Option) (*sql.DB, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec("PRAGMA " + p[0] + " = " + p[1]); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: pragma %s: %w", p[0], err)
		}
	}
	if err := applySchemas(db, cfg.schemas); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

func applySchemas(db *sql.DB, schemas []string) error {
	if len(schemas) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("dbopen: begin schema: %w", err)
	}
	for i, s := range schemas {
		if _, err := tx.Exec(s); err != nil {
			tx.Rollback()
			return fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit schema: %w", err)
	}
	return nil
}

// OpenMemory opens an in-memory database for tests. MaxOpenConns is pinned
// to 1 because each ":memory:" connection is a separate database. The
// database is closed through t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
