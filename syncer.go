package shelfsync

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/internal/engine"
	"github.com/shelfsync/shelfsync/internal/planner"
	"github.com/shelfsync/shelfsync/internal/ratelimit"
	"github.com/shelfsync/shelfsync/internal/retry"
	"github.com/shelfsync/shelfsync/synctypes"
)

// Syncer plans and executes incremental mirror runs. It is safe to call
// Sync repeatedly; runs are idempotent with respect to persisted state.
type Syncer struct {
	source   synctypes.Source
	dest     synctypes.Destination
	state    synctypes.StateStore
	failures synctypes.FailureStore

	config  synctypes.Config
	planner *planner.Planner
	logger  *log.Logger
	fs      afero.Fs
}

// Result summarizes one sync run.
type Result struct {
	// Planned is the number of upload actions the planner produced
	Planned int

	// Uploaded is the number of items whose bytes reached the destination
	Uploaded int

	// Skipped is the number of items adopted without an upload because
	// identical content already existed at the destination
	Skipped int

	// Failed is the number of items that failed terminally
	Failed int
}

// New creates a Syncer over the given collaborators with the provided
// options applied.
//
// Example:
//
//	syncer, err := shelfsync.New(source, dest, stateStore, failureStore,
//	    shelfsync.WithDestRoot("/mirror"),
//	    shelfsync.WithWorkers(8),
//	    shelfsync.WithQPS(2, 4),
//	)
func New(
	source synctypes.Source,
	dest synctypes.Destination,
	stateStore synctypes.StateStore,
	failureStore synctypes.FailureStore,
	opts ...synctypes.Option,
) (*Syncer, error) {
	if source == nil || dest == nil || stateStore == nil {
		return nil, errors.NewError("new", errors.ErrInvalidInput)
	}

	cfg := synctypes.Config{
		DestRoot:          "/",
		StagingDir:        os.TempDir(),
		Workers:           engine.DefaultWorkers,
		DryRunOut:         os.Stdout,
		MaxAttempts:       retry.DefaultMaxAttempts,
		BackoffInitial:    retry.DefaultInitialInterval,
		BackoffMax:        retry.DefaultMaxInterval,
		MaxConflictProbes: engine.DefaultMaxConflictProbes,
		MaxNameLength:     planner.DefaultMaxNameLength,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Syncer{
		source:   source,
		dest:     dest,
		state:    stateStore,
		failures: failureStore,
		config:   cfg,
		planner:  planner.New(cfg.MaxNameLength),
		logger:   log.StandardLogger(),
		fs:       afero.NewOsFs(),
	}, nil
}

// SetLogger replaces the logger used by the Syncer and its engine.
func (s *Syncer) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// setFs swaps the filesystem, for tests.
func (s *Syncer) setFs(fs afero.Fs) {
	s.fs = fs
}

// Plan diffs the catalogue against persisted state and returns the
// upload plan without executing it. Planning performs no I/O beyond the
// state read and is deterministic for a given catalogue and state.
func (s *Syncer) Plan(catalogue []synctypes.ItemRecord) []synctypes.PlanEntry {
	return s.planner.Plan(catalogue, s.state.Read())
}

// Sync plans and executes one mirror run over the catalogue.
//
// In dry-run mode the plan is printed and nothing else happens. In live
// mode items transfer concurrently; if any item fails terminally, Sync
// still finishes every other item, records each failure to the failure
// store, and returns an aggregate error alongside the partial result.
func (s *Syncer) Sync(ctx context.Context, catalogue []synctypes.ItemRecord) (*Result, error) {
	plan := s.Plan(catalogue)
	s.logger.WithField("planned", len(plan)).Info("sync plan ready")

	policy := retry.Policy{
		MaxAttempts:     s.config.MaxAttempts,
		InitialInterval: s.config.BackoffInitial,
		MaxInterval:     s.config.BackoffMax,
	}
	if s.failures != nil {
		policy.Classifier = s.failures.Classify
	}

	eng := engine.New(engine.Config{
		Source:       s.source,
		Dest:         s.dest,
		State:        s.state,
		Failures:     s.failures,
		SourceLimit:  ratelimit.New(s.config.SourceQPS),
		DestLimit:    ratelimit.New(s.config.DestQPS),
		Retry:        policy,
		FS:           s.fs,
		StagingDir:   s.config.StagingDir,
		DestRoot:     s.config.DestRoot,
		Workers:      s.config.Workers,
		MaxConflicts: s.config.MaxConflictProbes,
		DryRunOut:    s.config.DryRunOut,
		Logger:       s.logger,
	})

	engResult, err := eng.Run(ctx, plan, s.config.DryRun)
	if engResult == nil {
		return nil, err
	}

	result := &Result{
		Planned:  len(plan),
		Uploaded: engResult.Uploaded,
		Skipped:  engResult.Skipped,
		Failed:   len(engResult.Failures),
	}
	return result, err
}
