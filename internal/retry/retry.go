// Package retry wraps calls to unreliable dependencies in a bounded
// exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const DefaultMaxAttempts = 10

// Policy bounds how often and how fast an operation is re-attempted. Only the
// attempt ceiling is a hard contract; intervals are jittered.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Observer is told about every failed attempt that will be retried.
// attempt is the 1-based number of the attempt that just failed.
type Observer func(err error, attempt int)

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the context is
// done, or p.MaxAttempts attempts have failed. The last error is returned.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), onRetry Observer) (T, error) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		return op(ctx)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if onRetry != nil {
				onRetry(err, attempt)
			}
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return res, permanent.Unwrap()
	}
	return res, err
}
