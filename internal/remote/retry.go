package remote

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the exponential backoff applied to one remote call.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first one.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxElapsed caps the total time spent retrying one call.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// DefaultRetryPolicy returns the retry defaults for index and registry requests.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		MaxElapsed:        5 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = d.BackoffBase
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = d.BackoffMultiplier
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = d.MaxElapsed
	}
	return p
}

// Do runs op until it succeeds, returns a non-retryable error, or the policy is exhausted.
// It reports how many attempts were made. Errors classified by IsRetryable are retried;
// everything else stops immediately. A RateLimitError hint overrides the computed wait.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, notify func(err error, wait time.Duration)) (int, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BackoffBase
	b.Multiplier = p.BackoffMultiplier
	b.MaxInterval = p.MaxBackoff

	attempts := 0
	operation := func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attempts++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			// A per-call timeout, not run cancellation: worth another try.
			return struct{}{}, err
		}
		if !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(notify)))
	}

	_, err := backoff.Retry(ctx, operation, opts...)
	return attempts, err
}
