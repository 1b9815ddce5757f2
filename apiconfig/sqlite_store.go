package apiconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SqliteConfig holds configuration for an embedded SQLite DB
type SqliteConfig struct {
	Path string // e.g., miner.db
}

type SqlDatabase interface {
	BootstrapLocal(ctx context.Context) error
	GetDb() *sql.DB
}

type SqliteDb struct {
	config SqliteConfig
	db     *sql.DB
}

func NewSQLiteDb(cfg SqliteConfig) *SqliteDb {
	return &SqliteDb{config: cfg}
}

func (d *SqliteDb) BootstrapLocal(ctx context.Context) error {
	db, err := OpenSQLite(d.config)
	if err != nil {
		return err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	d.db = db
	return nil
}

func (d *SqliteDb) GetDb() *sql.DB { return d.db }

// OpenSQLite opens an embedded SQLite database (in process)
func OpenSQLite(cfg SqliteConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// Reasonable pool defaults for sqlite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetConnMaxLifetime(0)
	db.SetMaxIdleConns(1)

	// Enable WAL; if it fails, return error (not optional for our usage)
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL;"); err != nil {
		return nil, err
	}
	// Reasonable defaults; ignore failure as they are optional
	_, _ = db.ExecContext(context.Background(), "PRAGMA synchronous=NORMAL;")
	_, _ = db.ExecContext(context.Background(), "PRAGMA busy_timeout=5000;")
	return db, nil
}

// EnsureSchema creates the single KV table that backs dynamic miner state.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmt := `
CREATE TABLE IF NOT EXISTS kv_config (
  key TEXT PRIMARY KEY,
  value_json TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT (STRFTIME('%Y-%m-%d %H:%M:%f','now')),
  created_at DATETIME NOT NULL DEFAULT (STRFTIME('%Y-%m-%d %H:%M:%f','now'))
);`
	_, err := db.ExecContext(ctx, stmt)
	return err
}

// KV helpers for dynamic state

// KVSetJSON upserts an arbitrary Go value encoded as JSON at the given key.
func KVSetJSON(ctx context.Context, db *sql.DB, key string, value any) error {
	if db == nil {
		return errors.New("db is nil")
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO kv_config(key, value_json) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = (STRFTIME('%Y-%m-%d %H:%M:%f','now'))`
	if _, err := tx.ExecContext(ctx, q, key, string(bytes)); err != nil {
		return err
	}
	return tx.Commit()
}

// KVGetJSON loads a key and unmarshals JSON into destPtr.
// If key not found, ok=false and no error is returned.
func KVGetJSON(ctx context.Context, db *sql.DB, key string, destPtr any) (ok bool, err error) {
	if db == nil {
		return false, errors.New("db is nil")
	}
	var raw string
	err = db.QueryRowContext(ctx, `SELECT value_json FROM kv_config WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), destPtr); err != nil {
		return false, fmt.Errorf("unmarshal json for key %s: %w", key, err)
	}
	return true, nil
}

// KVSetInt64 stores an int64 under key.
func KVSetInt64(ctx context.Context, db *sql.DB, key string, v int64) error {
	return KVSetJSON(ctx, db, key, v)
}

// KVGetInt64 retrieves an int64. If missing, returns ok=false.
func KVGetInt64(ctx context.Context, db *sql.DB, key string) (val int64, ok bool, err error) {
	var tmp int64
	ok, err = KVGetJSON(ctx, db, key, &tmp)
	if !ok || err != nil {
		return 0, ok, err
	}
	return tmp, true, nil
}
