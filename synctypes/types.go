// Package synctypes provides shared type definitions for the shelfsync module.
package synctypes

import (
	"context"
	"io"
	"time"
)

// ItemRecord describes one item as reported by the source catalogue.
// It is produced by a source lister and is immutable from the engine's
// point of view.
type ItemRecord struct {
	// ID is the stable unique key for the item across runs
	ID string

	// Title is the human-readable item title; may be empty
	Title string

	// Ext is the file extension without the leading dot
	Ext string

	// UpdatedAt is the source's last-update marker. It is a free-form
	// string and is only ever compared for equality, never parsed.
	UpdatedAt string

	// Size is the item size in bytes as reported by the source
	Size int64

	// Locator is the opaque fetch handle the source client uses to
	// download the item's bytes (e.g. a URL)
	Locator string
}

// StateRecord is the durable record of the last successfully synced
// version of an item. It is created on first successful transfer and
// overwritten only by a subsequent successful transfer.
type StateRecord struct {
	// UpdatedAt is the source update marker at transfer time
	UpdatedAt string `json:"updated_at"`

	// Size is the verified size in bytes
	Size int64 `json:"size"`

	// Hash is the content fingerprint of the verified destination object
	Hash string `json:"hash"`

	// DestPath is the destination path the item was written to. The wire
	// name is kept as dropbox_path for compatibility with existing state
	// documents.
	DestPath string `json:"dropbox_path"`
}

// State is the full persisted sync state, one record per item id.
type State struct {
	// Version is the state document schema version
	Version int `json:"version"`

	// Items maps item id to its last-synced record
	Items map[string]StateRecord `json:"items"`
}

// StateVersion is the current state document schema version.
const StateVersion = 1

// NewState returns an empty state at the current schema version.
func NewState() *State {
	return &State{
		Version: StateVersion,
		Items:   make(map[string]StateRecord),
	}
}

// PlanEntry is one decided, not-yet-executed upload action. Entries are
// produced once per run by the planner and consumed once by the engine.
type PlanEntry struct {
	// Action is the planned action; currently always ActionUpload
	Action string

	// ID is the item id the entry was planned for
	ID string

	// RelPath is the destination path relative to the destination root
	RelPath string

	// Title is carried through for reporting
	Title string

	// Ext is the file extension without the leading dot
	Ext string

	// UpdatedAt is the source update marker to persist on success
	UpdatedAt string

	// Size is the expected size in bytes; zero when the source did not
	// report one
	Size int64

	// Locator is the opaque fetch handle for the item's bytes
	Locator string
}

// ActionUpload is the only plan action the engine currently executes.
const ActionUpload = "upload"

// Stage identifies the pipeline stage a failure occurred in.
type Stage string

// Pipeline stages recorded in the failure log.
const (
	StageDownload    Stage = "download"
	StageUpload      Stage = "upload"
	StageVerify      Stage = "verify"
	StageStateUpdate Stage = "state_update"
)

// FailureRecord is one append-only audit entry for a terminal or
// classified fault.
type FailureRecord struct {
	// ID is the item id the failure belongs to
	ID string `json:"id"`

	// Stage is the pipeline stage that faulted
	Stage Stage `json:"stage"`

	// ErrorClass is the classified error category
	ErrorClass string `json:"error_class"`

	// Retryable reports whether the classifier considered the fault transient
	Retryable bool `json:"retryable"`

	// Message is the fault message, truncated for storage
	Message string `json:"message"`

	// TS is the record timestamp, UTC ISO8601 with Z suffix
	TS string `json:"ts"`
}

// EntryMetadata describes a destination entry as returned by a metadata
// query. Exists is false when nothing lives at the queried path; the
// remaining fields are only meaningful when Exists is true.
type EntryMetadata struct {
	// Exists reports whether anything exists at the path
	Exists bool

	// IsFolder reports whether the entry is a folder rather than a file
	IsFolder bool

	// Size is the entry size in bytes when the destination reports one
	Size int64

	// SizeKnown reports whether Size carries a real value
	SizeKnown bool

	// ContentHash is the destination's content fingerprint for the entry,
	// empty when the destination does not report one
	ContentHash string

	// Path is the destination path the metadata describes
	Path string
}

// Source is the capability the engine needs from a source client:
// fetching one item's bytes to a local path. Listing and authentication
// are the source client's own concern.
type Source interface {
	// Download fetches the item's bytes to destPath, returning an error
	// on definitive failure.
	Download(ctx context.Context, item ItemRecord, destPath string) error
}

// Destination is the capability the engine needs from a destination
// client. Implementations must be safe for concurrent use.
type Destination interface {
	// EnsureFolder creates the folder at path; an already-existing folder
	// is success.
	EnsureFolder(ctx context.Context, path string) error

	// GetMetadata returns metadata for the entry at path. A missing entry
	// is not an error: the returned metadata has Exists set to false.
	GetMetadata(ctx context.Context, path string) (*EntryMetadata, error)

	// UploadFile uploads the local file to remotePath. It must fail
	// rather than silently overwrite when the remote path is written
	// concurrently.
	UploadFile(ctx context.Context, localPath, remotePath string) error
}

// Config holds the assembled configuration for a Syncer. Fields are
// populated from functional options; zero values select defaults.
type Config struct {
	// DestRoot is the destination root folder all items are mirrored under
	DestRoot string

	// StagingDir is the local directory downloads are staged in
	StagingDir string

	// Workers is the number of concurrent transfer workers
	Workers int

	// DryRun makes Sync a pure projection that prints planned actions
	DryRun bool

	// DryRunOut receives dry-run output; defaults to os.Stdout
	DryRunOut io.Writer

	// MaxAttempts bounds retry attempts for each network step
	MaxAttempts int

	// BackoffInitial is the initial randomized backoff interval
	BackoffInitial time.Duration

	// BackoffMax caps the randomized backoff interval
	BackoffMax time.Duration

	// SourceQPS throttles source operations; non-positive disables
	SourceQPS float64

	// DestQPS throttles destination operations; non-positive disables
	DestQPS float64

	// MaxConflictProbes caps " (vN)" conflict probing per item
	MaxConflictProbes int

	// MaxNameLength bounds normalized file names
	MaxNameLength int
}

// Option is a functional option that mutates a Config.
type Option func(*Config)
