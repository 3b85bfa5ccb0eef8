package state

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/shelfsync/shelfsync/synctypes"
)

// DocumentStore persists state as a single versioned JSON document.
// Unknown fields in an existing document are ignored on read; writes
// replace the whole document via a temp-file rename.
type DocumentStore struct {
	fs   afero.Fs
	path string
}

// NewDocumentStore creates a document store reading and writing path on fs.
func NewDocumentStore(fs afero.Fs, path string) *DocumentStore {
	return &DocumentStore{fs: fs, path: path}
}

// Read implements Store. Any failure to load or decode the document
// degrades to an empty default state.
func (s *DocumentStore) Read() *synctypes.State {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return synctypes.NewState()
	}

	var st synctypes.State
	if err := json.Unmarshal(data, &st); err != nil {
		return synctypes.NewState()
	}
	if st.Version != synctypes.StateVersion || st.Items == nil {
		return synctypes.NewState()
	}
	return &st
}

// Write implements Store.
func (s *DocumentStore) Write(state *synctypes.State) error {
	if state == nil {
		state = synctypes.NewState()
	}
	state.Version = synctypes.StateVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state dir: %w", err)
		}
	}

	// Write-then-rename so a crash mid-write never corrupts the document.
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state document: %w", err)
	}
	return nil
}

// GetItem implements Store.
func (s *DocumentStore) GetItem(id string) (synctypes.StateRecord, bool, error) {
	st := s.Read()
	rec, ok := st.Items[id]
	return rec, ok, nil
}

// UpsertItem implements Store.
func (s *DocumentStore) UpsertItem(id string, rec synctypes.StateRecord) error {
	st := s.Read()
	st.Items[id] = rec
	return s.Write(st)
}
