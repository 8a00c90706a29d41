package dedup

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `CREATE TABLE IF NOT EXISTS fingerprints (
	fingerprint TEXT PRIMARY KEY,
	marked_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
)`

// SQLiteStore keeps the fingerprint set in a local SQLite database. The
// primary-key INSERT OR IGNORE makes MarkIfNew atomic without any
// in-process locking, which suits long-lived sets too large to hold in
// memory.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the fingerprint database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dedup dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open dedup db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fingerprints table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Seen reports whether the fingerprint is in the set.
func (s *SQLiteStore) Seen(fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM fingerprints WHERE fingerprint = ?`, fingerprint,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query fingerprint: %w", err)
	}
	return true, nil
}

// Mark adds the fingerprint; already-present fingerprints are ignored.
func (s *SQLiteStore) Mark(fingerprint string) error {
	_, err := s.MarkIfNew(fingerprint)
	return err
}

// MarkIfNew marks the fingerprint and reports whether it was unseen.
func (s *SQLiteStore) MarkIfNew(fingerprint string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO fingerprints (fingerprint) VALUES (?)`, fingerprint,
	)
	if err != nil {
		return false, fmt.Errorf("insert fingerprint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close dedup db: %w", err)
	}
	return nil
}
