package state

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// migratedKey marks a completed (or deliberately skipped) document
// import in the meta table.
const migratedKey = "document_migrated"

// migrateFromDocument performs the one-time import of a sibling document
// store into an empty items table.
//
// The import runs at most once per database: a marker row is written
// whether or not a document was found, so a later run never re-imports.
// A non-empty items table is never overwritten.
func (s *SQLStore) migrateFromDocument(docPath string) error {
	var marker string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, migratedKey).Scan(&marker)
	if err == nil {
		return nil
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return fmt.Errorf("counting items before migration: %w", err)
	}
	if count > 0 {
		return s.setMigrated()
	}

	if _, statErr := os.Stat(docPath); statErr != nil {
		return s.setMigrated()
	}

	doc := NewDocumentStore(afero.NewOsFs(), docPath)
	imported := doc.Read()
	if len(imported.Items) > 0 {
		if err := s.Write(imported); err != nil {
			return fmt.Errorf("importing document state: %w", err)
		}
	}
	return s.setMigrated()
}

func (s *SQLStore) setMigrated() error {
	_, err := s.db.Exec(`
INSERT INTO meta (key, value) VALUES (?, 'done')
ON CONFLICT(key) DO NOTHING
`, migratedKey)
	if err != nil {
		return fmt.Errorf("recording migration marker: %w", err)
	}
	return nil
}
