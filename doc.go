// Package shelfsync incrementally mirrors items from an account-gated
// content source to a cloud storage destination.
//
// Previously transferred items are tracked in durable local state so
// repeated runs are idempotent and only transfer what changed. The
// module emphasizes safety under partial failure: every upload is
// verified against a content fingerprint, naming conflicts are resolved
// deterministically by content-addressed comparison, and state only
// mutates for items whose full pipeline succeeded.
//
// Key features:
//   - Change detection by updated_at and size against persisted state
//   - Concurrent download, verify, upload, verify pipeline
//   - At most one logical upload per distinct content
//   - Dual-backend durable state (JSON document or sqlite)
//   - Fault classification with an append-only failure audit trail
//   - Bounded retries with randomized exponential backoff
//   - Per-service rate limiting
//
// Example usage:
//
//	syncer, err := shelfsync.New(source, dest, stateStore, failureStore,
//	    shelfsync.WithDestRoot("/mirror"),
//	    shelfsync.WithWorkers(4),
//	)
//	if err != nil {
//	    return err
//	}
//
//	result, err := syncer.Sync(ctx, catalogue)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("uploaded %d, skipped %d\n", result.Uploaded, result.Skipped)
package shelfsync
