// Package retry wraps fallible operations with bounded attempts,
// randomized exponential backoff, and a pluggable retry predicate.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default policy bounds used when a field is left at its zero value.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Classifier decides whether a fault is worth retrying. It returns the
// error class and the retry verdict; only the verdict matters here.
type Classifier func(err error) (class string, retryable bool)

// Policy retries an operation with randomized exponential backoff capped
// at MaxInterval, up to MaxAttempts total attempts. When Classifier is
// nil every fault is retried; otherwise a fault is retried iff the
// classifier reports it retryable.
//
// On exhausting attempts, or on a non-retryable fault, Do returns the
// original fault unchanged rather than wrapping it.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Classifier      Classifier
}

// Do runs fn under the policy.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	initial := p.InitialInterval
	if initial <= 0 {
		initial = DefaultInitialInterval
	}
	maxInterval := p.MaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0 // bounded by attempts, not wall clock

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if p.Classifier != nil {
			if _, retryable := p.Classifier(err); !retryable {
				// Permanent faults surface immediately; backoff.Retry
				// unwraps the PermanentError so callers see the original.
				return backoff.Permanent(err)
			}
		}
		return err
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
	return backoff.Retry(operation, wrapped)
}
