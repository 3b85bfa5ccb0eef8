package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shelfsync/shelfsync"
	"github.com/shelfsync/shelfsync/s3dest"
	"github.com/shelfsync/shelfsync/source/httpsource"
	"github.com/shelfsync/shelfsync/synctypes"
)

// newSyncCommand creates the `sync` command.
func newSyncCommand() *cobra.Command {
	var (
		cataloguePath string
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Plan and execute one mirror run",
		Long: "Diff the catalogue against persisted state and transfer every new\n" +
			"or changed item to the destination. With --dry-run, print the plan\n" +
			"and exit without transferring anything.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cataloguePath, dryRun)
		},
	}
	cmd.Flags().StringVar(&cataloguePath, "catalogue", "catalogue.json", "catalogue file produced by the source lister")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print planned actions without transferring")
	return cmd
}

func runSync(ctx context.Context, cataloguePath string, dryRun bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	catalogue, err := loadCatalogue(cataloguePath)
	if err != nil {
		return err
	}

	stateStore, failureStore, closeStores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	dest, err := s3dest.New(ctx, cfg.Destination.Bucket,
		s3dest.WithRegion(cfg.Destination.Region),
	)
	if err != nil {
		return err
	}

	source := httpsource.New()

	syncer, err := shelfsync.New(source, dest, stateStore, failureStore,
		shelfsync.WithDestRoot(cfg.Destination.Root),
		shelfsync.WithStagingDir(cfg.Staging),
		shelfsync.WithWorkers(cfg.Workers),
		shelfsync.WithDryRun(dryRun),
		shelfsync.WithMaxAttempts(cfg.Retry.MaxAttempts),
		shelfsync.WithBackoff(cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff),
		shelfsync.WithQPS(cfg.RateLimit.SourceQPSEffective(), cfg.RateLimit.DestQPSEffective()),
	)
	if err != nil {
		return err
	}

	result, err := syncer.Sync(ctx, catalogue)
	if result != nil {
		log.WithFields(log.Fields{
			"planned":  result.Planned,
			"uploaded": result.Uploaded,
			"skipped":  result.Skipped,
			"failed":   result.Failed,
		}).Info("sync finished")
	}
	return err
}

// buildStores constructs the configured state and failure backends.
func buildStores(cfg *Config) (synctypes.StateStore, synctypes.FailureStore, func(), error) {
	switch cfg.State.Backend {
	case "sqlite":
		stateStore, err := shelfsync.OpenSQLStateStore(cfg.State.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		failureStore, err := shelfsync.NewSQLFailureStoreFrom(stateStore)
		if err != nil {
			stateStore.Close()
			return nil, nil, nil, err
		}
		return stateStore, failureStore, func() { stateStore.Close() }, nil

	case "document":
		stateStore := shelfsync.NewDocumentStateStore(nil, cfg.State.Path)
		failureStore := shelfsync.NewJSONLFailureStore(nil, cfg.FailureLog)
		return stateStore, failureStore, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}
