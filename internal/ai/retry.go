package ai

import (
	"math"
	"time"
)

// Verdict is the retry decision for a failed attempt.
type Verdict int

const (
	Fatal Verdict = iota
	Retryable
)

const (
	attemptCeiling   = 3
	defaultBaseDelay = 500 * time.Millisecond
)

// RetryPolicy decides which failures are retried and how long to wait.
// It holds no state; retry counters live in a single Send call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns 3 attempts with 500ms doubling backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attemptCeiling,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  2,
	}
}

// Classify reports whether err may be retried. ServerBusy, Network and
// Timeout failures are retryable; everything else, including
// cancellation, is fatal.
func (p RetryPolicy) Classify(err error) Verdict {
	switch KindOf(err) {
	case KindServerBusy, KindNetwork, KindTimeout:
		return Retryable
	default:
		return Fatal
	}
}

// DelayFor returns the wait after the given failed attempt (1-based):
// BaseDelay * Multiplier^(attempt-1). A non-positive BaseDelay falls back
// to 500ms so the waits always grow.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(base) * math.Pow(mult, float64(attempt-1))
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// attempts is MaxAttempts bounded to [1, 3].
func (p RetryPolicy) attempts() int {
	return min(max(p.MaxAttempts, 1), attemptCeiling)
}
