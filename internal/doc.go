// Package internal contains private implementation details for the
// shelfsync module. These packages are not intended for external use
// and may change without notice.
//
// The internal packages are organized as follows:
//   - planner: change detection and upload plan generation
//   - engine: concurrent transfer pipeline execution
//   - contenthash: two-level chunked content fingerprinting
//   - state: durable sync state backends (document and sqlite)
//   - failure: fault classification and the failure audit trail
//   - retry: bounded retry with randomized exponential backoff
//   - ratelimit: minimum-interval operation throttling
//   - pool: reusable fixed-capacity byte buffers
//   - validation: bucket name and destination path checks
//   - testutil: in-memory collaborator doubles for tests
package internal
