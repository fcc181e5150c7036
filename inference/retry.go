package inference

import (
	"math"
	"math/rand"
	"time"
)

// Default retry constants. Fixed here rather than guessed per call site:
// 3 total attempts, 500ms base delay, doubling between attempts.
const (
	DefaultAttempts    = 3
	DefaultBaseBackoff = 500 * time.Millisecond
)

// RetryPolicy bounds the retry loop for transient provider failures.
type RetryPolicy struct {
	// Attempts is the total number of attempts including the first.
	Attempts int
	// BaseBackoff is the delay before the second attempt; each subsequent
	// delay doubles.
	BaseBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	return p
}

// backoff returns the delay before attempt n (n ≥ 2): base * 2^(n-2), with
// up to 10% jitter added so concurrent callers don't retry in lockstep.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-2))) * p.BaseBackoff
	jitter := time.Duration(rand.Int63n(int64(d)/10 + 1)) //nolint:gosec
	return d + jitter
}
