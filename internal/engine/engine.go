// Package engine executes upload plans concurrently.
//
// Each plan entry runs through an ordered pipeline on one worker:
// download to staging, integrity check, fingerprint, destination
// metadata comparison, upload-or-skip-or-rename, post-upload
// verification, state commit. Workers are bounded by a semaphore, one
// item's terminal failure never aborts siblings, and the engine reports
// a single aggregate error after every worker has finished.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	syncerrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/internal/contenthash"
	"github.com/shelfsync/shelfsync/internal/failure"
	"github.com/shelfsync/shelfsync/internal/ratelimit"
	"github.com/shelfsync/shelfsync/internal/retry"
	"github.com/shelfsync/shelfsync/internal/state"
	"github.com/shelfsync/shelfsync/synctypes"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 4

// DefaultMaxConflictProbes caps " (vN)" probing per item so a
// misbehaving destination cannot trap a worker in an endless rename
// loop.
const DefaultMaxConflictProbes = 100

// Config assembles everything the engine needs to run a plan.
type Config struct {
	Source       synctypes.Source
	Dest         synctypes.Destination
	State        state.Store
	Failures     failure.Store
	SourceLimit  *ratelimit.Limiter
	DestLimit    *ratelimit.Limiter
	Retry        retry.Policy
	FS           afero.Fs
	StagingDir   string
	DestRoot     string
	Workers      int
	MaxConflicts int
	DryRunOut    io.Writer
	Logger       *log.Logger
}

// Engine runs upload plans.
type Engine struct {
	source   synctypes.Source
	dest     synctypes.Destination
	state    state.Store
	failures failure.Store

	sourceLimit *ratelimit.Limiter
	destLimit   *ratelimit.Limiter
	retry       retry.Policy

	fs         afero.Fs
	stagingDir string
	destRoot   string

	workers      int
	maxConflicts int
	semaphore    chan struct{}

	dryRunOut io.Writer
	log       *log.Logger

	// stateMu serializes state upserts; state persistence is not safe
	// for unsynchronized concurrent writers.
	stateMu sync.Mutex
}

// New creates an engine from cfg, applying defaults for unset fields.
func New(cfg Config) *Engine {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	maxConflicts := cfg.MaxConflicts
	if maxConflicts < 1 {
		maxConflicts = DefaultMaxConflictProbes
	}
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	out := cfg.DryRunOut
	if out == nil {
		out = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Engine{
		source:       cfg.Source,
		dest:         cfg.Dest,
		state:        cfg.State,
		failures:     cfg.Failures,
		sourceLimit:  cfg.SourceLimit,
		destLimit:    cfg.DestLimit,
		retry:        cfg.Retry,
		fs:           fs,
		stagingDir:   cfg.StagingDir,
		destRoot:     cfg.DestRoot,
		workers:      workers,
		maxConflicts: maxConflicts,
		semaphore:    make(chan struct{}, workers),
		dryRunOut:    out,
		log:          logger,
	}
}

// ItemFailure is one item's terminal failure.
type ItemFailure struct {
	// ID is the failed item's id
	ID string

	// Stage is the pipeline stage the item failed in
	Stage synctypes.Stage

	// Err is the underlying fault
	Err error
}

// Result summarizes one engine run.
type Result struct {
	// Uploaded is the number of items whose bytes were written to the destination
	Uploaded int

	// Skipped is the number of items adopted without an upload because
	// the destination fingerprint already matched
	Skipped int

	// Failures holds each item's terminal failure, in completion order
	Failures []ItemFailure
}

// Run executes the plan. In dry-run mode it is a pure single-threaded
// projection that prints would-be destination paths and performs no I/O.
// In live mode it runs the plan on the worker pool and, if any item
// failed terminally, returns an aggregate error alongside the result
// once every worker has finished.
func (e *Engine) Run(ctx context.Context, plan []synctypes.PlanEntry, dryRun bool) (*Result, error) {
	if dryRun {
		e.printPlan(plan)
		return &Result{}, nil
	}

	result := &Result{}
	if len(plan) == 0 {
		return result, nil
	}

	if err := e.fs.MkdirAll(e.stagingDir, 0o755); err != nil {
		return nil, syncerrors.NewError("staging", err)
	}

	// The root folder is created once up front; already-exists is success.
	if err := e.destNetworkStep(ctx, func() error {
		return e.dest.EnsureFolder(ctx, e.destRoot)
	}); err != nil {
		return nil, syncerrors.NewError("ensure_root", err).WithPath(e.destRoot)
	}

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
	)

	for _, entry := range plan {
		if entry.Action != synctypes.ActionUpload {
			continue
		}

		e.semaphore <- struct{}{}
		wg.Add(1)
		go func(entry synctypes.PlanEntry) {
			defer wg.Done()
			defer func() { <-e.semaphore }()

			uploaded, failed := e.runItem(ctx, entry)

			resultMu.Lock()
			defer resultMu.Unlock()
			switch {
			case failed != nil:
				result.Failures = append(result.Failures, *failed)
			case uploaded:
				result.Uploaded++
			default:
				result.Skipped++
			}
		}(entry)
	}

	wg.Wait()

	if n := len(result.Failures); n > 0 {
		first := result.Failures[0]
		return result, fmt.Errorf("%d item(s) failed during sync; first failure (item %s, stage %s): %w",
			n, first.ID, first.Stage, first.Err)
	}
	return result, nil
}

// printPlan writes the dry-run projection of the plan.
func (e *Engine) printPlan(plan []synctypes.PlanEntry) {
	fmt.Fprintf(e.dryRunOut, "[DRY-RUN] planned actions: %d\n", len(plan))
	for _, entry := range plan {
		if entry.Action != synctypes.ActionUpload {
			continue
		}
		fmt.Fprintf(e.dryRunOut, "[DRY-RUN] upload id=%s -> %s (title=%q, size=%d, ext=%s)\n",
			entry.ID, e.destPath(entry.RelPath), entry.Title, entry.Size, entry.Ext)
	}
}

// destPath joins a plan-relative path onto the destination root.
func (e *Engine) destPath(relPath string) string {
	root := strings.TrimRight(e.destRoot, "/")
	if strings.HasPrefix(relPath, "/") {
		return root + relPath
	}
	return root + "/" + relPath
}

// sourceNetworkStep wraps a source call with rate limiting and retries.
func (e *Engine) sourceNetworkStep(ctx context.Context, fn func() error) error {
	return e.retry.Do(ctx, func() error {
		if e.sourceLimit != nil {
			if err := e.sourceLimit.Wait(ctx); err != nil {
				return err
			}
		}
		return fn()
	})
}

// destNetworkStep wraps a destination call with rate limiting and retries.
func (e *Engine) destNetworkStep(ctx context.Context, fn func() error) error {
	return e.retry.Do(ctx, func() error {
		if e.destLimit != nil {
			if err := e.destLimit.Wait(ctx); err != nil {
				return err
			}
		}
		return fn()
	})
}

// runItem drives one plan entry through the full pipeline. It returns
// whether an upload happened and, on terminal failure, the recorded
// failure. Terminal faults are classified and written to the failure
// store before returning; the item's prior state record is left
// untouched.
func (e *Engine) runItem(ctx context.Context, entry synctypes.PlanEntry) (bool, *ItemFailure) {
	itemLog := e.log.WithFields(log.Fields{"id": entry.ID, "path": entry.RelPath})

	uploaded, destPath, stage, err := e.transfer(ctx, entry, itemLog)
	if err != nil {
		itemLog.WithError(err).WithField("stage", stage).Warn("item failed")
		if e.failures != nil {
			if _, recErr := e.failures.RecordFailure(entry.ID, stage, err); recErr != nil {
				itemLog.WithError(recErr).Error("recording failure")
			}
		}
		return false, &ItemFailure{ID: entry.ID, Stage: stage, Err: err}
	}

	itemLog.WithFields(log.Fields{"dest": destPath, "uploaded": uploaded}).Info("item synced")
	return uploaded, nil
}

// transfer performs the download→verify→upload→verify→commit pipeline
// and reports the stage of the first fault.
func (e *Engine) transfer(
	ctx context.Context,
	entry synctypes.PlanEntry,
	itemLog *log.Entry,
) (uploaded bool, destPath string, stage synctypes.Stage, err error) {
	staged := path.Join(e.stagingDir, entry.ID+"."+entry.Ext)
	defer e.fs.Remove(staged)

	item := synctypes.ItemRecord{
		ID:        entry.ID,
		Title:     entry.Title,
		Ext:       entry.Ext,
		UpdatedAt: entry.UpdatedAt,
		Size:      entry.Size,
		Locator:   entry.Locator,
	}

	// 1. Fetch the item's bytes into the staging file.
	if err := e.sourceNetworkStep(ctx, func() error {
		return e.source.Download(ctx, item, staged)
	}); err != nil {
		return false, "", synctypes.StageDownload, err
	}

	// 2. Integrity check before any hashing or upload.
	info, statErr := e.fs.Stat(staged)
	if statErr != nil {
		return false, "", synctypes.StageDownload, statErr
	}
	if info.Size() == 0 {
		return false, "", synctypes.StageDownload,
			fmt.Errorf("%w: downloaded file is empty: %s", syncerrors.ErrIntegrityMismatch, staged)
	}
	if entry.Size > 0 && info.Size() != entry.Size {
		return false, "", synctypes.StageDownload,
			fmt.Errorf("%w: size mismatch: expected %d, got %d", syncerrors.ErrIntegrityMismatch, entry.Size, info.Size())
	}

	// 3. Content fingerprint of the staged bytes.
	localHash, hashErr := contenthash.File(e.fs, staged)
	if hashErr != nil {
		return false, "", synctypes.StageDownload, hashErr
	}

	// 4. Resolve the destination path against existing entries.
	target := e.destPath(entry.RelPath)
	if err := e.ensureParentFolders(ctx, target); err != nil {
		return false, "", synctypes.StageUpload, err
	}

	finalPath, needUpload, resolveErr := e.resolveConflict(ctx, target, localHash, itemLog)
	if resolveErr != nil {
		return false, "", synctypes.StageUpload, resolveErr
	}

	if needUpload {
		if err := e.destNetworkStep(ctx, func() error {
			return e.dest.UploadFile(ctx, staged, finalPath)
		}); err != nil {
			return false, "", synctypes.StageUpload, err
		}

		// 5. Verify the written object before trusting it.
		if err := e.verifyUpload(ctx, finalPath, info.Size(), localHash); err != nil {
			return false, "", synctypes.StageVerify, err
		}
	}

	// 6. Commit state under the shared mutex.
	e.stateMu.Lock()
	commitErr := e.state.UpsertItem(entry.ID, synctypes.StateRecord{
		UpdatedAt: entry.UpdatedAt,
		Size:      info.Size(),
		Hash:      localHash,
		DestPath:  finalPath,
	})
	e.stateMu.Unlock()
	if commitErr != nil {
		return needUpload, finalPath, synctypes.StageStateUpdate, commitErr
	}

	return needUpload, finalPath, "", nil
}

// resolveConflict decides where the staged content goes. A missing
// target means upload there; a matching fingerprint anywhere in the
// probe sequence means adopt that path with zero uploads; otherwise the
// first unused " (vN)" name wins. Probing is capped so a destination
// that reports every path as occupied fails the item instead of looping.
func (e *Engine) resolveConflict(
	ctx context.Context,
	target, localHash string,
	itemLog *log.Entry,
) (finalPath string, needUpload bool, err error) {
	candidate := target
	for probe := 0; probe <= e.maxConflicts; probe++ {
		meta, metaErr := e.getMetadata(ctx, candidate)
		if metaErr != nil {
			return "", false, metaErr
		}

		if !meta.Exists {
			return candidate, true, nil
		}
		if !meta.IsFolder && meta.ContentHash != "" && meta.ContentHash == localHash {
			// Same content already lives here; adopt it.
			itemLog.WithField("dest", candidate).Debug("identical content at destination, skipping upload")
			return candidate, false, nil
		}

		candidate = versionedPath(target, probe+2)
	}

	return "", false, fmt.Errorf("%w: no free path after %d probes for %s",
		syncerrors.ErrConflictExhausted, e.maxConflicts, target)
}

// verifyUpload re-queries metadata for the written path and checks it
// against the staged file. Mismatches are terminal for the item.
func (e *Engine) verifyUpload(ctx context.Context, destPath string, size int64, localHash string) error {
	meta, err := e.getMetadata(ctx, destPath)
	if err != nil {
		return err
	}

	if !meta.Exists || meta.IsFolder {
		return fmt.Errorf("%w: uploaded entry missing or not a file at %s", syncerrors.ErrVerifyFailed, destPath)
	}
	if meta.SizeKnown && meta.Size != size {
		return fmt.Errorf("%w: size mismatch after upload: expected %d, got %d",
			syncerrors.ErrVerifyFailed, size, meta.Size)
	}
	if meta.ContentHash != "" && meta.ContentHash != localHash {
		return fmt.Errorf("%w: content_hash mismatch after upload at %s", syncerrors.ErrVerifyFailed, destPath)
	}
	return nil
}

// getMetadata queries destination metadata with rate limiting and retries.
func (e *Engine) getMetadata(ctx context.Context, destPath string) (*synctypes.EntryMetadata, error) {
	var meta *synctypes.EntryMetadata
	err := e.destNetworkStep(ctx, func() error {
		m, err := e.dest.GetMetadata(ctx, destPath)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	return meta, err
}

// ensureParentFolders creates intermediate folders for multi-segment
// destination paths. The root itself is ensured before workers start.
func (e *Engine) ensureParentFolders(ctx context.Context, destPath string) error {
	parent := path.Dir(destPath)
	root := strings.TrimRight(e.destRoot, "/")
	if root == "" {
		root = "/"
	}
	if parent == root || parent == "/" || parent == "." {
		return nil
	}
	return e.destNetworkStep(ctx, func() error {
		return e.dest.EnsureFolder(ctx, parent)
	})
}

// versionedPath builds the nth conflict candidate: "name.ext" becomes
// "name (v2).ext", "name (v3).ext", and so on.
func versionedPath(target string, n int) string {
	ext := path.Ext(target)
	base := strings.TrimSuffix(target, ext)
	return fmt.Sprintf("%s (v%d)%s", base, n, ext)
}
