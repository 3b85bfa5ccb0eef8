package failure

import (
	"database/sql"
	"fmt"

	"github.com/shelfsync/shelfsync/synctypes"
)

// SQLStore appends failure records to a failures table, typically in the
// same database as the relational state store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a sqlite-backed store and ensures its schema.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS failures (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  item_id TEXT NOT NULL,
  stage TEXT NOT NULL,
  error_class TEXT NOT NULL,
  retryable INTEGER NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  ts TEXT NOT NULL
);
`,
		`CREATE INDEX IF NOT EXISTS idx_failures_ts ON failures(ts);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, fmt.Errorf("initializing failures schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

// RecordFailure implements Store.
func (s *SQLStore) RecordFailure(id string, stage synctypes.Stage, err error) (synctypes.FailureRecord, error) {
	rec := newRecord(id, stage, err)

	retryable := 0
	if rec.Retryable {
		retryable = 1
	}
	_, execErr := s.db.Exec(`
INSERT INTO failures (item_id, stage, error_class, retryable, message, ts)
VALUES (?, ?, ?, ?, ?, ?)
`, rec.ID, string(rec.Stage), rec.ErrorClass, retryable, rec.Message, rec.TS)
	if execErr != nil {
		return rec, fmt.Errorf("inserting failure record: %w", execErr)
	}
	return rec, nil
}

// ListRecent implements Store.
func (s *SQLStore) ListRecent(limit int) ([]synctypes.FailureRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
SELECT item_id, stage, error_class, retryable, message, ts
FROM failures
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var out []synctypes.FailureRecord
	for rows.Next() {
		var rec synctypes.FailureRecord
		var stage string
		var retryable int
		if err := rows.Scan(&rec.ID, &stage, &rec.ErrorClass, &retryable, &rec.Message, &rec.TS); err != nil {
			return nil, fmt.Errorf("scanning failure record: %w", err)
		}
		rec.Stage = synctypes.Stage(stage)
		rec.Retryable = retryable != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Classify implements Store.
func (s *SQLStore) Classify(err error) (string, bool) {
	return Classify(err)
}
