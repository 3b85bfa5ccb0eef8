// Package failure classifies sync faults and persists an append-only
// audit trail of them.
//
// Classification assigns each fault an error class and a retry verdict;
// the retry policy consults the verdict and the engine records every
// terminal fault before propagating it. Two interchangeable backends
// are provided, mirroring the state store: an append-only JSON Lines
// log and a table in the same relational store.
package failure

import (
	"time"

	"github.com/shelfsync/shelfsync/synctypes"
)

// maxMessageLength bounds persisted fault messages so one pathological
// error cannot bloat the log.
const maxMessageLength = 1000

// Store is the contract both backends implement.
type Store = synctypes.FailureStore

// newRecord builds a FailureRecord for err at the current time.
func newRecord(id string, stage synctypes.Stage, err error) synctypes.FailureRecord {
	class, retryable := Classify(err)

	message := ""
	if err != nil {
		message = err.Error()
	}
	if len(message) > maxMessageLength {
		message = message[:maxMessageLength] + "...(truncated)"
	}

	return synctypes.FailureRecord{
		ID:         id,
		Stage:      stage,
		ErrorClass: class,
		Retryable:  retryable,
		Message:    message,
		TS:         time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}
