// Package ratelimit enforces a minimum wall-clock interval between
// successive permitted operations against one outbound service.
//
// A single Limiter is shared by every worker talking to that service;
// grants are serialized so that no two consecutive grants, process-wide,
// are closer together than the configured interval.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter spaces permitted operations by a minimum interval. The zero
// value is not usable; construct with New.
type Limiter struct {
	interval time.Duration
	clock    clockwork.Clock

	mu   sync.Mutex
	next time.Time
}

// New creates a limiter permitting qps operations per second, i.e. a
// minimum interval of 1/qps between grants. A non-positive qps disables
// throttling entirely.
func New(qps float64) *Limiter {
	return NewWithClock(qps, clockwork.NewRealClock())
}

// NewWithClock creates a limiter with an injected clock for tests.
func NewWithClock(qps float64, clock clockwork.Clock) *Limiter {
	var interval time.Duration
	if qps > 0 {
		interval = time.Duration(float64(time.Second) / qps)
	}
	return &Limiter{
		interval: interval,
		clock:    clock,
	}
}

// Interval returns the minimum interval between grants; zero when
// throttling is disabled.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller is permitted to proceed. The next grant
// slot is reserved before sleeping, so concurrent callers queue up and
// each pair of consecutive grants respects the minimum interval. Wait
// returns early with ctx.Err() if the context is cancelled while
// waiting; the reserved slot is still consumed in that case.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := l.clock.Now()
	grant := l.next
	if grant.Before(now) {
		grant = now
	}
	l.next = grant.Add(l.interval)
	l.mu.Unlock()

	delay := grant.Sub(now)
	if delay <= 0 {
		return ctx.Err()
	}

	select {
	case <-l.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
