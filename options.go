package shelfsync

import (
	"io"
	"time"

	"github.com/shelfsync/shelfsync/synctypes"
)

// WithDestRoot sets the destination root folder all items are mirrored
// under. Default is "/".
func WithDestRoot(root string) synctypes.Option {
	return func(c *synctypes.Config) {
		if root != "" {
			c.DestRoot = root
		}
	}
}

// WithStagingDir sets the local directory downloads are staged in.
// Default is the OS temp directory.
func WithStagingDir(dir string) synctypes.Option {
	return func(c *synctypes.Config) {
		if dir != "" {
			c.StagingDir = dir
		}
	}
}

// WithWorkers sets the number of concurrent transfer workers.
// Default is 4 workers. Values below 1 are ignored.
func WithWorkers(workers int) synctypes.Option {
	return func(c *synctypes.Config) {
		if workers > 0 {
			c.Workers = workers
		}
	}
}

// WithDryRun makes Sync a pure projection that prints planned actions
// without performing any I/O.
func WithDryRun(dryRun bool) synctypes.Option {
	return func(c *synctypes.Config) {
		c.DryRun = dryRun
	}
}

// WithDryRunOutput directs dry-run output to w instead of stdout.
func WithDryRunOutput(w io.Writer) synctypes.Option {
	return func(c *synctypes.Config) {
		if w != nil {
			c.DryRunOut = w
		}
	}
}

// WithMaxAttempts bounds retry attempts for each network step.
// Default is 3 attempts.
func WithMaxAttempts(attempts int) synctypes.Option {
	return func(c *synctypes.Config) {
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithBackoff sets the initial and maximum randomized backoff intervals
// between retry attempts.
func WithBackoff(initial, max time.Duration) synctypes.Option {
	return func(c *synctypes.Config) {
		if initial > 0 {
			c.BackoffInitial = initial
		}
		if max > 0 {
			c.BackoffMax = max
		}
	}
}

// WithQPS throttles source and destination operations independently.
// A non-positive value disables throttling for that service.
func WithQPS(sourceQPS, destQPS float64) synctypes.Option {
	return func(c *synctypes.Config) {
		c.SourceQPS = sourceQPS
		c.DestQPS = destQPS
	}
}

// WithMaxConflictProbes caps how many " (vN)" candidate names are
// probed per item before the item fails. Default is 100.
func WithMaxConflictProbes(probes int) synctypes.Option {
	return func(c *synctypes.Config) {
		if probes > 0 {
			c.MaxConflictProbes = probes
		}
	}
}

// WithMaxNameLength bounds normalized destination file names.
// Default is 150 characters.
func WithMaxNameLength(length int) synctypes.Option {
	return func(c *synctypes.Config) {
		if length > 0 {
			c.MaxNameLength = length
		}
	}
}
