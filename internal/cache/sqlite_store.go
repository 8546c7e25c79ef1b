package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteFileName is the database file created inside the cache directory.
const SQLiteFileName = "cache.db"

// SQLiteStore keeps entries in a single SQLite table.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLiteStore opens (and migrates) the cache database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if err := migrateDatabase(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, (5 * time.Second).Milliseconds())

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The cache has a single writer.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close database after ping error: %w (original error: %v)", closeErr, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{conn: conn, path: path}, nil
}

// Load reads the entry for key.
func (s *SQLiteStore) Load(key string) (Entry, bool, error) {
	var (
		storedAt int64
		data     []byte
	)
	err := s.conn.QueryRow(
		`SELECT stored_at, data FROM cache_entries WHERE key = ?`, key,
	).Scan(&storedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to query cache entry: %w", err)
	}

	return Entry{
		Key:      key,
		StoredAt: time.UnixMilli(storedAt),
		Data:     data,
	}, true, nil
}

// Save inserts or replaces the entry.
func (s *SQLiteStore) Save(entry Entry) error {
	_, err := s.conn.Exec(`
		INSERT INTO cache_entries (key, category, stored_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			stored_at = excluded.stored_at,
			data = excluded.data
	`, entry.Key, categoryOf(entry.Key), entry.StoredAt.UnixMilli(), []byte(entry.Data))
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Clear deletes every entry.
func (s *SQLiteStore) Clear() error {
	if _, err := s.conn.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Stats counts entries and their payload size.
func (s *SQLiteStore) Stats() (StoreStats, error) {
	stats := StoreStats{Backend: "sqlite", Location: s.path}

	var total sql.NullInt64
	err := s.conn.QueryRow(
		`SELECT COUNT(*), SUM(LENGTH(data)) FROM cache_entries`,
	).Scan(&stats.Entries, &total)
	if err != nil {
		return stats, fmt.Errorf("failed to query cache stats: %w", err)
	}
	stats.TotalBytes = total.Int64

	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func categoryOf(key string) string {
	category, _, _ := strings.Cut(key, ":")
	return category
}
