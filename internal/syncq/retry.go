package syncq

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy maps a task's attempt count to its next retry delay.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxAttempts bounds total delivery attempts; 0 means unbounded.
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 30 * time.Second,
		MaxInterval:     15 * time.Minute,
	}
}

// Delay returns the retry delay after the given number of completed
// attempts (attempts >= 1). Exponential growth, capped at MaxInterval,
// no jitter so scheduling stays deterministic.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Exhausted reports whether attempts has reached the policy's bound.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
