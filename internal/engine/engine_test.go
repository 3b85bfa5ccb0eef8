package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/internal/failure"
	"github.com/shelfsync/shelfsync/internal/retry"
	"github.com/shelfsync/shelfsync/internal/state"
	"github.com/shelfsync/shelfsync/internal/testutil"
	"github.com/shelfsync/shelfsync/synctypes"
)

type fixture struct {
	engine   *Engine
	fs       afero.Fs
	source   *testutil.FakeSource
	dest     *testutil.FakeDestination
	state    *state.DocumentStore
	failures *failure.JSONLStore
	dryOut   *bytes.Buffer
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	mem := afero.NewMemMapFs()
	f := &fixture{
		fs:       mem,
		source:   testutil.NewFakeSource(mem),
		dest:     testutil.NewFakeDestination(mem),
		state:    state.NewDocumentStore(mem, "/state.json"),
		failures: failure.NewJSONLStore(mem, "/failures.jsonl"),
		dryOut:   &bytes.Buffer{},
	}

	logger := log.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := Config{
		Source:     f.source,
		Dest:       f.dest,
		State:      f.state,
		Failures:   f.failures,
		FS:         mem,
		StagingDir: "/staging",
		DestRoot:   "/books",
		Workers:    2,
		DryRunOut:  f.dryOut,
		Logger:     logger,
		Retry: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: time.Microsecond,
			MaxInterval:     time.Microsecond,
			Classifier:      failure.Classify,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.engine = New(cfg)
	return f
}

func uploadEntry(id, relPath string, size int64) synctypes.PlanEntry {
	return synctypes.PlanEntry{
		Action:    synctypes.ActionUpload,
		ID:        id,
		RelPath:   relPath,
		Title:     "Title " + id,
		Ext:       "pdf",
		UpdatedAt: "2026-01-15T10:00:00Z",
		Size:      size,
		Locator:   "https://example.com/content/" + id,
	}
}

func TestRun_UploadsNewItem(t *testing.T) {
	f := newFixture(t, nil)
	content := []byte("book one content")
	f.source.Content["b1"] = content

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len(content))),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"/books/A.pdf"}, f.dest.Paths())

	rec, ok, err := f.state.GetItem("b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/books/A.pdf", rec.DestPath)
	assert.Equal(t, int64(len(content)), rec.Size)
	assert.Equal(t, "2026-01-15T10:00:00Z", rec.UpdatedAt)
	assert.NotEmpty(t, rec.Hash)

	// Staged files do not outlive the transfer.
	exists, err := afero.Exists(f.fs, "/staging/b1.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_SkipsWhenDestinationContentMatches(t *testing.T) {
	f := newFixture(t, nil)
	content := []byte("already mirrored")
	f.source.Content["b1"] = content
	f.dest.Put("/books/A.pdf", content)

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len(content))),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Uploaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, f.dest.Uploads())

	// The adopted path still gets committed to state.
	rec, ok, err := f.state.GetItem("b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/books/A.pdf", rec.DestPath)
}

func TestRun_ConflictGetsVersionedName(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Content["b1"] = []byte("new edition")
	f.dest.Put("/books/A.pdf", []byte("someone else's file"))

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len("new edition"))),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Uploaded)
	assert.Contains(t, f.dest.Paths(), "/books/A (v2).pdf")

	rec, _, err := f.state.GetItem("b1")
	require.NoError(t, err)
	assert.Equal(t, "/books/A (v2).pdf", rec.DestPath)
}

func TestRun_ConflictProbesBeyondV2(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Content["b1"] = []byte("third copy")
	f.dest.Put("/books/A.pdf", []byte("first occupant"))
	f.dest.Put("/books/A (v2).pdf", []byte("second occupant"))

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len("third copy"))),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Uploaded)
	assert.Contains(t, f.dest.Paths(), "/books/A (v3).pdf")
}

func TestRun_AdoptsMatchingContentAtProbePath(t *testing.T) {
	f := newFixture(t, nil)
	content := []byte("identical bytes")
	f.source.Content["b1"] = content
	f.dest.Put("/books/A.pdf", []byte("different occupant"))
	f.dest.Put("/books/A (v2).pdf", content)

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len(content))),
	}, false)
	require.NoError(t, err)

	// Matching content anywhere in the probe sequence means zero uploads.
	assert.Equal(t, 0, result.Uploaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, f.dest.Uploads())

	rec, _, err := f.state.GetItem("b1")
	require.NoError(t, err)
	assert.Equal(t, "/books/A (v2).pdf", rec.DestPath)
}

func TestRun_ConflictProbingIsCapped(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.MaxConflicts = 2
	})
	f.source.Content["b1"] = []byte("never lands")
	f.dest.GetMetadataFunc = func(_ context.Context, path string) (*synctypes.EntryMetadata, error) {
		return &synctypes.EntryMetadata{
			Exists:      true,
			Size:        1,
			SizeKnown:   true,
			ContentHash: "occupied",
			Path:        path,
		}, nil
	}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len("never lands"))),
	}, false)
	require.Error(t, err)

	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, syncerrors.ErrConflictExhausted)
	assert.Equal(t, synctypes.StageUpload, result.Failures[0].Stage)
}

func TestRun_TransientDownloadFaultRecovers(t *testing.T) {
	f := newFixture(t, nil)
	content := []byte("eventually arrives")

	var attempts atomic.Int32
	f.source.DownloadFunc = func(_ context.Context, item synctypes.ItemRecord, destPath string) error {
		if attempts.Add(1) < 3 {
			return testutil.FlakyError("timeout")
		}
		return afero.WriteFile(f.fs, destPath, content, 0o644)
	}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len(content))),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 1, result.Uploaded)
	assert.Empty(t, result.Failures)

	// Recovered faults leave no terminal failure record.
	records, err := f.failures.ListRecent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRun_ExhaustedFaultIsRecordedOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.source.DownloadFunc = func(_ context.Context, _ synctypes.ItemRecord, _ string) error {
		return testutil.FlakyError("server_error")
	}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", 10),
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 item(s) failed")

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "b1", result.Failures[0].ID)
	assert.Equal(t, synctypes.StageDownload, result.Failures[0].Stage)

	records, recErr := f.failures.ListRecent(10)
	require.NoError(t, recErr)
	require.Len(t, records, 1)
	assert.Equal(t, "b1", records[0].ID)
	assert.Equal(t, synctypes.StageDownload, records[0].Stage)
	assert.Equal(t, failure.ClassServerError, records[0].ErrorClass)
	assert.True(t, records[0].Retryable)

	// A failed item never touches state.
	_, ok, stateErr := f.state.GetItem("b1")
	require.NoError(t, stateErr)
	assert.False(t, ok)
}

func TestRun_SizeMismatchIsNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Content["b1"] = []byte("short")

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", 9999),
	}, false)
	require.Error(t, err)

	// The bytes landed fine; the integrity check fails after the fetch,
	// so exactly one download happens.
	assert.Equal(t, 1, f.source.Downloads())

	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, syncerrors.ErrIntegrityMismatch)

	records, recErr := f.failures.ListRecent(10)
	require.NoError(t, recErr)
	require.Len(t, records, 1)
	assert.Equal(t, failure.ClassIntegrityMismatch, records[0].ErrorClass)
	assert.False(t, records[0].Retryable)
}

func TestRun_EmptyDownloadFails(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Content["b1"] = []byte{}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", 0),
	}, false)
	require.Error(t, err)

	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, syncerrors.ErrIntegrityMismatch)
	assert.Equal(t, 0, f.dest.Uploads())
}

func TestRun_VerifyMismatchIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Content["b1"] = []byte("what was sent")
	f.dest.UploadFunc = func(_ context.Context, _, remotePath string) error {
		f.dest.Put(remotePath, []byte("what was stored"))
		return nil
	}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", int64(len("what was sent"))),
	}, false)
	require.Error(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, synctypes.StageVerify, result.Failures[0].Stage)
	assert.ErrorIs(t, result.Failures[0].Err, syncerrors.ErrVerifyFailed)

	_, ok, stateErr := f.state.GetItem("b1")
	require.NoError(t, stateErr)
	assert.False(t, ok)
}

func TestRun_OneFailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, nil)
	good := []byte("good item")
	f.source.Content["good"] = good
	f.source.DownloadFunc = func(ctx context.Context, item synctypes.ItemRecord, destPath string) error {
		if item.ID == "bad" {
			return testutil.FlakyError("timeout")
		}
		return afero.WriteFile(f.fs, destPath, good, 0o644)
	}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("bad", "Bad.pdf", 10),
		uploadEntry("good", "Good.pdf", int64(len(good))),
	}, false)
	require.Error(t, err)

	assert.Equal(t, 1, result.Uploaded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "bad", result.Failures[0].ID)
	assert.Contains(t, f.dest.Paths(), "/books/Good.pdf")
}

func TestRun_NestedFoldersAreEnsured(t *testing.T) {
	f := newFixture(t, nil)
	content := []byte("nested item")
	f.source.Content["b1"] = content

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "series/A.pdf", int64(len(content))),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Uploaded)
	assert.Contains(t, f.dest.Paths(), "/books/series/A.pdf")
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Content["b1"] = []byte("never fetched")

	plan := []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", 13),
		uploadEntry("b2", "B.pdf", 7),
	}
	result, err := f.engine.Run(context.Background(), plan, true)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Uploaded)
	assert.Equal(t, 0, f.source.Downloads())
	assert.Equal(t, 0, f.dest.Uploads())

	out := f.dryOut.String()
	assert.Contains(t, out, "[DRY-RUN] planned actions: 2")
	assert.Contains(t, out, "id=b1 -> /books/A.pdf")
	assert.Contains(t, out, "id=b2 -> /books/B.pdf")

	_, ok, stateErr := f.state.GetItem("b1")
	require.NoError(t, stateErr)
	assert.False(t, ok)
}

func TestRun_EmptyPlanIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.engine.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Uploaded)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failures)
}

func TestRun_AggregateErrorCountsAllFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.source.DownloadFunc = func(_ context.Context, item synctypes.ItemRecord, _ string) error {
		return fmt.Errorf("no such item %s", item.ID)
	}

	result, err := f.engine.Run(context.Background(), []synctypes.PlanEntry{
		uploadEntry("b1", "A.pdf", 10),
		uploadEntry("b2", "B.pdf", 10),
		uploadEntry("b3", "C.pdf", 10),
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 item(s) failed")
	assert.Len(t, result.Failures, 3)
}

func TestVersionedPath(t *testing.T) {
	tests := []struct {
		target string
		n      int
		want   string
	}{
		{"/books/A.pdf", 2, "/books/A (v2).pdf"},
		{"/books/A.pdf", 3, "/books/A (v3).pdf"},
		{"/books/no-ext", 2, "/books/no-ext (v2)"},
		{"/books/a.b/C.pdf", 2, "/books/a.b/C (v2).pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, versionedPath(tt.target, tt.n))
	}
}
