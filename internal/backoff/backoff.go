// Package backoff provides the exponential reconnect delay policy used by
// the session supervisor.
package backoff

import "time"

// Policy computes exponentially increasing delays: Base for the first
// attempt, doubling per attempt, with no automatic retry once MaxRetries
// consecutive attempts have failed. Policy values are immutable and safe to
// share.
type Policy struct {
	Base       time.Duration
	MaxRetries int
}

// Delay returns the wait before the given attempt (1-based). Attempts past
// MaxRetries are clamped to the last in-budget delay; callers are expected
// to check Exhausted first.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.MaxRetries > 0 && attempt > p.MaxRetries {
		attempt = p.MaxRetries
	}
	return p.Base << (attempt - 1)
}

// Exhausted reports whether the given attempt count has used up the retry
// budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxRetries > 0 && attempt > p.MaxRetries
}
