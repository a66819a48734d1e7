// Package storage persists host state that must survive restarts.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/notchkit/internal/domain/ledger"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS authorizations (
    identity     TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
`

// LedgerStore keeps authorization entries in a SQLite database.
type LedgerStore struct {
	db *sql.DB
}

var _ ledger.Store = (*LedgerStore)(nil)

// OpenLedgerStore opens (creating if needed) the database at path.
func OpenLedgerStore(path string) (*LedgerStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	// A single writer keeps WAL checkpoints simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

// Load returns every stored entry.
func (s *LedgerStore) Load() ([]ledger.Entry, error) {
	rows, err := s.db.Query(`SELECT identity, display_name, status, created_at, updated_at
		FROM authorizations ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                ledger.Entry
			status           string
			created, updated int64
		)
		if err := rows.Scan(&e.Identity, &e.DisplayName, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		e.Status = ledger.Status(status)
		e.CreatedAt = time.Unix(0, created)
		e.UpdatedAt = time.Unix(0, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save upserts an entry.
func (s *LedgerStore) Save(e ledger.Entry) error {
	_, err := s.db.Exec(`INSERT INTO authorizations (identity, display_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			display_name = excluded.display_name,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		e.Identity, e.DisplayName, string(e.Status), e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save ledger entry %s: %w", e.Identity, err)
	}
	return nil
}

// Delete removes an entry; deleting a missing identity is not an error.
func (s *LedgerStore) Delete(identity string) error {
	if _, err := s.db.Exec(`DELETE FROM authorizations WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete ledger entry %s: %w", identity, err)
	}
	return nil
}

// Close closes the database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}
