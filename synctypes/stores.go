package synctypes

// StateStore is the durable state contract shared by both state
// backends.
//
// UpsertItem followed by GetItem for the same id always observes the
// just-written record. Implementations tolerate concurrent readers but
// writers must be externally serialized; the engine holds a mutex
// around every upsert.
type StateStore interface {
	// Read loads the full state. It never fails: absence, corruption, or
	// a schema mismatch yields an empty default state.
	Read() *State

	// Write replaces the full persisted state with a snapshot.
	Write(state *State) error

	// GetItem returns the record for id and whether one exists.
	GetItem(id string) (StateRecord, bool, error)

	// UpsertItem creates or replaces the record for id.
	UpsertItem(id string, rec StateRecord) error
}

// FailureStore classifies faults and persists an append-only audit
// trail of them.
type FailureStore interface {
	// RecordFailure classifies err, appends an audit record for
	// (id, stage), and returns the record that was written.
	RecordFailure(id string, stage Stage, err error) (FailureRecord, error)

	// ListRecent returns up to limit records, most recent first.
	ListRecent(limit int) ([]FailureRecord, error)

	// Classify maps a fault to its (error class, retryable) pair so the
	// retry policy can share the store's taxonomy.
	Classify(err error) (string, bool)
}
