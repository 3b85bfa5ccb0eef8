package failure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/shelfsync/shelfsync/synctypes"
)

// JSONLStore appends failure records to a JSON Lines file, one record
// per line. Safe for concurrent use within a single process.
type JSONLStore struct {
	fs   afero.Fs
	path string

	mu sync.Mutex
}

// NewJSONLStore creates a JSONL-backed store writing to path on fs.
func NewJSONLStore(fs afero.Fs, path string) *JSONLStore {
	return &JSONLStore{fs: fs, path: path}
}

// RecordFailure implements Store.
func (s *JSONLStore) RecordFailure(id string, stage synctypes.Stage, err error) (synctypes.FailureRecord, error) {
	rec := newRecord(id, stage, err)

	line, marshalErr := json.Marshal(rec)
	if marshalErr != nil {
		return rec, fmt.Errorf("marshaling failure record: %w", marshalErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if mkErr := s.fs.MkdirAll(dir, 0o755); mkErr != nil {
			return rec, fmt.Errorf("creating failure log dir: %w", mkErr)
		}
	}

	f, openErr := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if openErr != nil {
		return rec, fmt.Errorf("opening failure log: %w", openErr)
	}
	defer f.Close()

	if _, writeErr := f.Write(append(line, '\n')); writeErr != nil {
		return rec, fmt.Errorf("appending failure record: %w", writeErr)
	}
	return rec, nil
}

// ListRecent implements Store. Records are returned newest first; lines
// that fail to parse are skipped.
func (s *JSONLStore) ListRecent(limit int) ([]synctypes.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening failure log: %w", err)
	}
	defer f.Close()

	var records []synctypes.FailureRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec synctypes.FailureRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading failure log: %w", err)
	}

	// The log is appended in time order; newest last on disk.
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Classify implements Store.
func (s *JSONLStore) Classify(err error) (string, bool) {
	return Classify(err)
}
