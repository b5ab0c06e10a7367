package agenterrors

import (
	"context"
	"time"
)

// Retry defaults
const (
	// DefaultMaxAttempts is how many times an operation runs before giving up
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the wait before the first retry
	DefaultRetryDelay = 1000 * time.Millisecond

	// DefaultBackoffMultiplier grows the delay after each retry
	DefaultBackoffMultiplier = 2.0
)

// defaultRetryableCodes are the failures worth retrying when a policy
// doesn't override the set
var defaultRetryableCodes = []Code{CodeNetwork, CodeWebhook}

// RetryPolicy controls RetryWithBackoff. The zero value uses the defaults.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts int

	// Delay is the wait before the first retry
	Delay time.Duration

	// BackoffMultiplier grows the delay after each retry
	BackoffMultiplier float64

	// RetryableCodes overrides which failures are retried; empty means
	// the default set (network and webhook failures)
	RetryableCodes []Code

	// OnRetry is called before each retry wait with the attempt number
	// that just failed and its error
	OnRetry func(attempt int, err error)
}

// withDefaults fills unset policy fields
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if len(p.RetryableCodes) == 0 {
		p.RetryableCodes = defaultRetryableCodes
	}
	return p
}

// retryable reports whether the policy retries the given failure
func (p RetryPolicy) retryable(err error) bool {
	code := CodeOf(err)
	for _, c := range p.RetryableCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a failure is worth retrying under the
// default policy
func IsRetryable(err error) bool {
	return RetryPolicy{}.withDefaults().retryable(err)
}

// RetryWithBackoff runs op up to policy.MaxAttempts times, waiting
// Delay, Delay*Multiplier, ... between attempts. Only retryable failures
// are retried; the last error is returned untouched so callers see the
// precise failure. The waits abort when ctx is cancelled.
func RetryWithBackoff(ctx context.Context, op func() error, policy RetryPolicy) error {
	policy = policy.withDefaults()

	var lastErr error
	delay := policy.Delay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !policy.retryable(lastErr) || attempt == policy.MaxAttempts {
			return lastErr
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, lastErr)
		}

		// Wait before the next attempt, bailing out on cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * policy.BackoffMultiplier)
	}

	return lastErr
}
