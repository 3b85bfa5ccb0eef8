// Package state persists the durable map from item id to last-synced
// metadata.
//
// Two interchangeable backends implement the synctypes.StateStore
// contract: a versioned JSON document and a sqlite table. Reads degrade
// to an empty default state rather than failing, so a missing or
// corrupt store is always recoverable by re-syncing. Records are
// created on first successful transfer, overwritten only by a later
// successful transfer, and never auto-deleted.
package state

import (
	"github.com/shelfsync/shelfsync/synctypes"
)

// Store is the contract both backends implement.
type Store = synctypes.StateStore
