// Package retry runs an operation under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second
	DefaultMultiplier  = 2.0
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Retryable reports whether err is worth another attempt. A nil
	// predicate retries nothing.
	Retryable func(err error) bool

	// OnRetry, if set, is called before waiting for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep replaces the real clock between attempts.
	Sleep Sleeper
}

// Default returns the policy used for model requests.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		Retryable:   retryable,
	}
}

// backOff returns the deterministic exponential schedule: BaseDelay,
// BaseDelay*Multiplier, ... with no jitter, cap or elapsed-time limit.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.BaseDelay),
		backoff.WithMultiplier(mult),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(time.Duration(math.MaxInt64)),
		backoff.WithMaxElapsedTime(0),
	)
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	b := p.backOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. fn receives the 1-based attempt number. There is no wait
// after the final attempt.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)

	attempt := 0
	permanent := false
	var last error
	op := func() error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if p.Retryable == nil || !p.Retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, err)
		}
	}

	var timer backoff.Timer
	if p.Sleep != nil {
		timer = &sleeperTimer{ctx: ctx, sleep: p.Sleep}
	}

	err := backoff.RetryNotifyWithTimer(op, b, notify, timer)
	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case attempt < attempts:
		return fmt.Errorf("waiting to retry: %w (last error: %v)", err, last)
	default:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
	}
}

// sleeperTimer drives the backoff loop with a Sleeper. It fires as soon as
// the sleeper returns, unless the context ended the wait.
type sleeperTimer struct {
	ctx   context.Context
	sleep Sleeper
	c     chan time.Time
}

func (t *sleeperTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.sleep(t.ctx, d); err != nil && t.ctx.Err() != nil {
		return
	}
	t.c <- time.Now()
}

func (t *sleeperTimer) Stop() {}

func (t *sleeperTimer) C() <-chan time.Time { return t.c }
