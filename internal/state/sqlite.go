package state

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/shelfsync/shelfsync/synctypes"
)

// SQLStore persists state as one row per item id in a sqlite table.
// Full-state writes are transactional delete-all-then-bulk-insert so
// they match the document backend's snapshot semantics.
type SQLStore struct {
	db *sql.DB
}

// Open opens (or creates) a sqlite state database at path and ensures
// its schema. On first initialization with an empty items table it
// probes the conventional sibling document location (path with a .json
// extension) and imports it once if valid.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrateFromDocument(documentSibling(path)); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an already-open database, ensuring the schema. No
// document migration is attempted; use Open for that.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle so the failure store can share it.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS items (
  id TEXT PRIMARY KEY,
  updated_at TEXT NOT NULL DEFAULT '',
  size INTEGER NOT NULL DEFAULT 0,
  hash TEXT NOT NULL DEFAULT '',
  dest_path TEXT NOT NULL DEFAULT ''
);
`,
		`
CREATE TABLE IF NOT EXISTS meta (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing state schema: %w", err)
		}
	}
	return nil
}

// documentSibling maps a db path to the conventional document-backend
// location next to it.
func documentSibling(dbPath string) string {
	if idx := strings.LastIndex(dbPath, "."); idx > strings.LastIndex(dbPath, "/") {
		return dbPath[:idx] + ".json"
	}
	return dbPath + ".json"
}

// Read implements Store. Query failures degrade to an empty default
// state, matching the document backend.
func (s *SQLStore) Read() *synctypes.State {
	st := synctypes.NewState()

	rows, err := s.db.Query(`SELECT id, updated_at, size, hash, dest_path FROM items`)
	if err != nil {
		return synctypes.NewState()
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var rec synctypes.StateRecord
		if err := rows.Scan(&id, &rec.UpdatedAt, &rec.Size, &rec.Hash, &rec.DestPath); err != nil {
			return synctypes.NewState()
		}
		st.Items[id] = rec
	}
	if rows.Err() != nil {
		return synctypes.NewState()
	}
	return st
}

// Write implements Store as a transactional snapshot replace.
func (s *SQLStore) Write(state *synctypes.State) error {
	if state == nil {
		state = synctypes.NewState()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning state write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items`); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}
	for id, rec := range state.Items {
		if _, err := tx.Exec(`
INSERT INTO items (id, updated_at, size, hash, dest_path)
VALUES (?, ?, ?, ?, ?)
`, id, rec.UpdatedAt, rec.Size, rec.Hash, rec.DestPath); err != nil {
			return fmt.Errorf("inserting item %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state write: %w", err)
	}
	return nil
}

// GetItem implements Store.
func (s *SQLStore) GetItem(id string) (synctypes.StateRecord, bool, error) {
	var rec synctypes.StateRecord
	err := s.db.QueryRow(`
SELECT updated_at, size, hash, dest_path FROM items WHERE id = ?
`, id).Scan(&rec.UpdatedAt, &rec.Size, &rec.Hash, &rec.DestPath)
	if err == sql.ErrNoRows {
		return synctypes.StateRecord{}, false, nil
	}
	if err != nil {
		return synctypes.StateRecord{}, false, fmt.Errorf("reading item %s: %w", id, err)
	}
	return rec, true, nil
}

// UpsertItem implements Store as insert-or-update by id.
func (s *SQLStore) UpsertItem(id string, rec synctypes.StateRecord) error {
	_, err := s.db.Exec(`
INSERT INTO items (id, updated_at, size, hash, dest_path)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  updated_at = excluded.updated_at,
  size = excluded.size,
  hash = excluded.hash,
  dest_path = excluded.dest_path
`, id, rec.UpdatedAt, rec.Size, rec.Hash, rec.DestPath)
	if err != nil {
		return fmt.Errorf("upserting item %s: %w", id, err)
	}
	return nil
}
