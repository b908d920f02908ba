// Package retry executes fallible remote calls with a bounded number of
// attempts and a backoff between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"trendEnvelopeBot/internal/ports"
)

// ErrExhausted is wrapped into the error returned once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures a Retrier.
type Policy struct {
	MaxAttempts int           // Total attempts, including the first one
	Delay       time.Duration // Wait after the first failure
	Factor      float64       // Growth of the wait per attempt; 1 keeps it fixed
	MaxDelay    time.Duration // Upper bound of the wait, defaults to Delay
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier applies a Policy to individual calls.
type Retrier struct {
	policy    Policy
	sleep     Sleeper
	logger    ports.Logger
	alerter   ports.Alerter
	retryable func(error) bool
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the wall-clock sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithAlerter sets the side channel fired on every failed attempt.
func WithAlerter(a ports.Alerter) Option {
	return func(r *Retrier) { r.alerter = a }
}

// WithRetryable overrides the classification of retryable errors.
func WithRetryable(fn func(error) bool) Option {
	return func(r *Retrier) { r.retryable = fn }
}

// New creates a Retrier. A MaxAttempts below 1 is treated as 1.
func New(policy Policy, logger ports.Logger, opts ...Option) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Factor <= 0 {
		policy.Factor = 1
	}
	if policy.MaxDelay < policy.Delay {
		policy.MaxDelay = policy.Delay
	}
	r := &Retrier{
		policy:    policy,
		sleep:     SleepContext,
		logger:    logger,
		retryable: ports.IsRetryable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy's
// attempts are used up. The worst case duration is bounded by
// MaxAttempts-1 waits.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b := &backoff.Backoff{
		Min:    r.policy.Delay,
		Max:    r.policy.MaxDelay,
		Factor: r.policy.Factor,
	}

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info(ctx, op+": succeeded after retry", map[string]interface{}{"attempt": attempt})
			}
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, err)
		}
		if !r.retryable(err) {
			return zero, err
		}

		r.logger.Warn(ctx, op+": attempt failed", map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": r.policy.MaxAttempts,
			"error":       err.Error(),
		})
		if r.alerter != nil {
			r.alerter.Alert(ctx, fmt.Sprintf("%s failed (attempt %d/%d): %v", op, attempt, r.policy.MaxAttempts, err))
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		wait := r.policy.Delay
		if r.policy.Delay > 0 {
			wait = b.Duration()
		}
		if err := r.sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, err)
		}
	}

	r.logger.Error(ctx, lastErr, op+": giving up", map[string]interface{}{"attempts": r.policy.MaxAttempts})
	return zero, fmt.Errorf("%s failed after %d attempts: %w: %w", op, r.policy.MaxAttempts, ErrExhausted, lastErr)
}
