// Package testutil provides in-memory collaborator doubles for tests.
//
// The doubles are interchangeable with real source and destination
// clients: the engine only sees the capability interfaces. Behavior is
// overridable per test through function fields, with a working
// in-memory default behind each.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/shelfsync/shelfsync/internal/contenthash"
	"github.com/shelfsync/shelfsync/synctypes"
)

// FakeSource serves item bytes from an in-memory map keyed by item id.
type FakeSource struct {
	// Content maps item id to the bytes Download writes
	Content map[string][]byte

	// DownloadFunc overrides Download entirely when set
	DownloadFunc func(ctx context.Context, item synctypes.ItemRecord, destPath string) error

	// FS receives downloaded files; defaults to a shared MemMapFs
	FS afero.Fs

	mu    sync.Mutex
	calls int
}

// NewFakeSource creates a source double writing to fs.
func NewFakeSource(fs afero.Fs) *FakeSource {
	return &FakeSource{
		Content: make(map[string][]byte),
		FS:      fs,
	}
}

// Download implements synctypes.Source.
func (s *FakeSource) Download(ctx context.Context, item synctypes.ItemRecord, destPath string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.DownloadFunc != nil {
		return s.DownloadFunc(ctx, item, destPath)
	}

	data, ok := s.Content[item.ID]
	if !ok {
		return fmt.Errorf("no content for item %s", item.ID)
	}
	return afero.WriteFile(s.FS, destPath, data, 0o644)
}

// Downloads returns how many times Download was called.
func (s *FakeSource) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeEntry is one object or folder held by FakeDestination.
type fakeEntry struct {
	folder bool
	data   []byte
}

// FakeDestination is an in-memory destination client. It mimics the
// contract the engine relies on: metadata queries report a content
// fingerprint computed the same way the engine computes it, and uploads
// fail on write conflicts instead of overwriting.
type FakeDestination struct {
	// GetMetadataFunc overrides GetMetadata when set
	GetMetadataFunc func(ctx context.Context, path string) (*synctypes.EntryMetadata, error)

	// UploadFunc overrides UploadFile when set
	UploadFunc func(ctx context.Context, localPath, remotePath string) error

	// FS is where UploadFile reads local files from
	FS afero.Fs

	mu      sync.Mutex
	entries map[string]*fakeEntry
	uploads int
}

// NewFakeDestination creates a destination double reading local files
// from fs.
func NewFakeDestination(fs afero.Fs) *FakeDestination {
	return &FakeDestination{
		FS:      fs,
		entries: make(map[string]*fakeEntry),
	}
}

// Put seeds an object at path with the given content.
func (d *FakeDestination) Put(path string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[path] = &fakeEntry{data: data}
}

// Uploads returns how many uploads succeeded.
func (d *FakeDestination) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

// Paths returns every stored object path.
func (d *FakeDestination) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for p, e := range d.entries {
		if !e.folder {
			out = append(out, p)
		}
	}
	return out
}

// EnsureFolder implements synctypes.Destination. Creating an existing
// folder succeeds; creating a folder over a file fails.
func (d *FakeDestination) EnsureFolder(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[path]; ok {
		if !e.folder {
			return fmt.Errorf("path %s exists and is not a folder", path)
		}
		return nil
	}
	d.entries[path] = &fakeEntry{folder: true}
	return nil
}

// GetMetadata implements synctypes.Destination.
func (d *FakeDestination) GetMetadata(ctx context.Context, path string) (*synctypes.EntryMetadata, error) {
	if d.GetMetadataFunc != nil {
		return d.GetMetadataFunc(ctx, path)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[path]
	if !ok {
		return &synctypes.EntryMetadata{Exists: false, Path: path}, nil
	}
	if e.folder {
		return &synctypes.EntryMetadata{Exists: true, IsFolder: true, Path: path}, nil
	}
	return &synctypes.EntryMetadata{
		Exists:      true,
		Size:        int64(len(e.data)),
		SizeKnown:   true,
		ContentHash: contenthash.SumBytes(e.data),
		Path:        path,
	}, nil
}

// UploadFile implements synctypes.Destination.
func (d *FakeDestination) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if d.UploadFunc != nil {
		return d.UploadFunc(ctx, localPath, remotePath)
	}

	data, err := afero.ReadFile(d.FS, localPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[remotePath]; ok && !e.folder {
		return fmt.Errorf("upload conflict: %s already exists", remotePath)
	}
	d.entries[remotePath] = &fakeEntry{data: data}
	d.uploads++
	return nil
}

// FlakyError returns an error whose message classifies as the given
// transient category, for driving retry paths in tests.
func FlakyError(kind string) error {
	switch strings.ToLower(kind) {
	case "timeout":
		return fmt.Errorf("read timeout while fetching")
	case "rate_limited":
		return fmt.Errorf("429 too many requests")
	case "server_error":
		return fmt.Errorf("server error: 503 unavailable")
	default:
		return fmt.Errorf("connection reset by peer")
	}
}
