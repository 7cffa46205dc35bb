package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Open opens (or creates) the sqlite database at dbPath and makes sure every
// table used by this package exists.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and serialises
	// writers, which sqlite would do anyway.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS onboarding (
			user_id TEXT PRIMARY KEY,
			current_step INTEGER NOT NULL DEFAULT 1,
			session_id TEXT NOT NULL,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS onboarding_steps (
			user_id TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			data TEXT NOT NULL,
			completed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, step_number)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate %s: %w", dbPath, err)
		}
	}
	return db, nil
}

// SQLiteKV is the persistent KV implementation backing the caches.
type SQLiteKV struct {
	DB *sql.DB
}

func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{DB: db}
}

func (s *SQLiteKV) Get(key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(key, value string) error {
	query := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := s.DB.Exec(query, key, value)
	return err
}

func (s *SQLiteKV) Remove(key string) error {
	_, err := s.DB.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *SQLiteKV) Keys(prefix string) ([]string, error) {
	// substr avoids LIKE wildcard escaping for prefixes containing '_' or '%'.
	// Comparing blobs makes it count bytes, as len does.
	rows, err := s.DB.Query(
		`SELECT key FROM kv WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB) ORDER BY key`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
