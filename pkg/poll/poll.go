// Package poll provides the bounded wait primitive shared by port-release
// waits, readiness waits, and health-check retries: one deadline, one
// interval, no open-ended loops.
package poll

import (
	"context"
	"time"
)

// Until repeatedly evaluates cond every interval until it returns true, the
// timeout elapses, or ctx is cancelled. It reports whether cond succeeded.
// The deadline is never overshot by more than one interval.
func Until(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if cond() {
				return true
			}
			if !time.Now().Before(deadline) {
				return false
			}
		}
	}
}

// Retry evaluates cond up to attempts times with delay between attempts,
// returning true on the first success. One attempt is always made.
func Retry(ctx context.Context, attempts int, delay time.Duration, cond func() bool) bool {
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if cond() {
			return true
		}
		if i == attempts-1 {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
	return false
}
