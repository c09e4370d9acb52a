// Package retry runs an operation again with exponential backoff until it
// succeeds, the attempt budget runs out or the context ends.
//
// By default only errors wrapped with Retryable are retried. WithRetryIf
// widens that; Permanent always stops the loop.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// marked carries the retry verdict for a wrapped error.
type marked struct {
	err   error
	retry bool
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true}
}

// Permanent marks err as final even when a RetryIf predicate would accept it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: false}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var m *marked
	return errors.As(err, &m) && m.retry
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var m *marked
	return errors.As(err, &m) && !m.retry
}

// unmark strips the outermost marker so callers see their own error.
func unmark(err error) error {
	if m, ok := err.(*marked); ok {
		return m.err
	}
	return err
}

// ─── Options ────────────────────────────────────────────────────────────────

type settings struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	RetryIf      func(error) bool
	OnRetry      func(attempt int, err error, delay time.Duration)
}

// Option tunes a Retrier.
type Option func(*settings)

func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.MaxDelay = d
		}
	}
}

// WithJitter spreads each delay by ±j of itself. 0 disables jitter.
func WithJitter(j float64) Option {
	return func(s *settings) {
		if j >= 0 && j <= 1 {
			s.Jitter = j
		}
	}
}

// WithRetryIf replaces the default "only Retryable" predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(s *settings) { s.RetryIf = fn }
}

// WithOnRetry is called before every sleep.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) { s.OnRetry = fn }
}

// ─── Retrier ────────────────────────────────────────────────────────────────

// Retrier is safe for concurrent use; it holds no per-call state.
type Retrier struct {
	config settings
}

func New(opts ...Option) *Retrier {
	s := settings{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Retrier{config: s}
}

// Do runs op until it succeeds or the error is not retried. The returned
// error has its Retryable/Permanent marker removed.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unmark(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		if !r.shouldRetry(err) || attempt >= r.config.MaxAttempts {
			return unmark(err)
		}

		delay := r.backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return unmark(last)
		case <-t.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return IsRetryable(err)
}

// backoff returns InitialDelay·Multiplier^(attempt-1), capped and jittered.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.config.MaxDelay))
	if j := r.config.Jitter; j > 0 {
		d += d * j * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Do is shorthand for New(opts...).Do(ctx, op).
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// DoWithData retries an operation that yields a value.
func DoWithData[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// ─── Presets ────────────────────────────────────────────────────────────────

// StartupRetrier waits for a backing store that may still be booting
// (docker compose, CI containers). Any non-permanent error is retried.
func StartupRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(6),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(8*time.Second),
		WithJitter(0.2),
		WithRetryIf(func(error) bool { return true }),
		WithOnRetry(onRetry),
	)
}

// DatabaseRetrier covers short hiccups on the ledger and user stores. Only
// errors the handler marked Retryable are tried again.
func DatabaseRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
	)
}
