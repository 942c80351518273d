package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps entries in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("kvstore: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	namespace, key, err := checkKey(namespace, key)
	if err != nil {
		return nil, false, err
	}
	var value []byte
	row := s.db.QueryRowContext(ctx, "SELECT value FROM kv_entries WHERE namespace = ? AND key = ?", namespace, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select entry: %w", err)
	}
	return value, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	namespace, key, err := checkKey(namespace, key)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO kv_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// Delete implements Store. Deleting a missing entry is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	namespace, key, err := checkKey(namespace, key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE namespace = ? AND key = ?", namespace, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
