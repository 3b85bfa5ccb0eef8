package shelfsync

import (
	"github.com/spf13/afero"

	"github.com/shelfsync/shelfsync/internal/failure"
	"github.com/shelfsync/shelfsync/internal/state"
	"github.com/shelfsync/shelfsync/synctypes"
)

// NewDocumentStateStore returns a state store persisting a single
// versioned JSON document at path.
func NewDocumentStateStore(fs afero.Fs, path string) synctypes.StateStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return state.NewDocumentStore(fs, path)
}

// OpenSQLStateStore opens (or creates) a sqlite-backed state store at
// path. On first initialization with an empty table it imports a valid
// sibling JSON document once, then never again.
//
// The returned store shares its database with any failure store created
// by NewSQLFailureStoreFrom.
func OpenSQLStateStore(path string) (*state.SQLStore, error) {
	return state.Open(path)
}

// NewJSONLFailureStore returns a failure store appending JSON Lines to
// path.
func NewJSONLFailureStore(fs afero.Fs, path string) synctypes.FailureStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return failure.NewJSONLStore(fs, path)
}

// NewSQLFailureStoreFrom returns a failure store writing to a failures
// table in the same database as the given sqlite state store.
func NewSQLFailureStoreFrom(stateStore *state.SQLStore) (synctypes.FailureStore, error) {
	return failure.NewSQLStore(stateStore.DB())
}
