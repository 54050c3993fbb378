// Package retry provides an explicit, testable retry policy around blocking
// network calls: bounded attempts with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how an operation is retried. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy mirrors the provider call sites: three attempts with
// exponential backoff between 2s and 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}
}

// Do runs op, retrying transient failures according to the policy. It stops
// on success, on a Permanent error, when the context is done, or after
// MaxAttempts attempts, returning the last error.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	// MaxAttempts counts attempts; WithMaxRetries counts retries after the first.
	policy := backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx)
	return backoff.Retry(op, policy)
}

// Permanent marks err as non-retryable: Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
