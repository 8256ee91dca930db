// Package sqlite keeps the local progress store in an on-disk SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"amc-progress-service/internal/app"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // SQLite driver.
)

// DB wraps the SQLite database holding every namespace.
type DB struct {
	db *sqlx.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, name)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Namespace returns the KV store for one user namespace.
func (d *DB) Namespace(namespace string) *KVStore {
	return &KVStore{db: d.db, namespace: namespace}
}

// Factory adapts the database to app.StoreFactory.
func (d *DB) Factory() app.StoreFactory {
	return func(namespace string) (app.KVStore, error) {
		return d.Namespace(namespace), nil
	}
}

// Namespaces lists every namespace that has stored data.
func (d *DB) Namespaces(ctx context.Context) ([]string, error) {
	var out []string
	if err := d.db.SelectContext(ctx, &out, `SELECT DISTINCT namespace FROM kv ORDER BY namespace`); err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return out, nil
}

// KVStore implements app.KVStore over the kv table.
type KVStore struct {
	db        *sqlx.DB
	namespace string
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE namespace = ? AND name = ?`, s.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", s.namespace, key, err)
	}
	return []byte(value), true, nil
}

func (s *KVStore) Put(ctx context.Context, entries map[string][]byte) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range entries {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO kv (namespace, name, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(namespace, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			s.namespace, key, string(value), now,
		); err != nil {
			return fmt.Errorf("put %s/%s: %w", s.namespace, key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *KVStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clear %s: %w", s.namespace, err)
	}
	return nil
}
