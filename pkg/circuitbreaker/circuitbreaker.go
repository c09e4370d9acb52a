// Package circuitbreaker stops calling a dependency that keeps failing and
// lets a single probe through once a cool-down has passed.
//
// closed ──N failures──▶ open ──timeout──▶ half-open ──M successes──▶ closed
//                          ▲                    │
//                          └────── failure ─────┘
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker. The numeric value is exported as a gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	// ErrCircuitOpen rejects a call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects a call while the half-open probes are in flight.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type tuning struct {
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	maxProbes        int
	onStateChange    func(name string, from, to State)
}

// Option tunes a breaker.
type Option func(*tuning)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(t *tuning) {
		if n > 0 {
			t.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many half-open successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(t *tuning) {
		if n > 0 {
			t.successThreshold = n
		}
	}
}

// WithTimeout sets the cool-down spent in the open state.
func WithTimeout(d time.Duration) Option {
	return func(t *tuning) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithMaxHalfOpenRequests caps concurrent probes.
func WithMaxHalfOpenRequests(n int) Option {
	return func(t *tuning) {
		if n > 0 {
			t.maxProbes = n
		}
	}
}

// WithOnStateChange registers a transition callback. It runs under the
// breaker's lock and must not call back into it.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(t *tuning) { t.onStateChange = fn }
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  tuning

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

func New(name string, opts ...Option) *CircuitBreaker {
	cfg := tuning{
		failureThreshold: 5,
		successThreshold: 2,
		timeout:          30 * time.Second,
		maxProbes:        1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// Execute runs fn unless the breaker rejects the call. Any error from fn
// counts as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err == nil)
	return err
}

// ExecuteWithFallback is Execute with fallback applied to any error,
// rejections included.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(error) error) error {
	if err := cb.Execute(ctx, fn); err != nil {
		return fallback(err)
	}
	return nil
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.timeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
	case StateHalfOpen:
		if cb.probes >= cb.cfg.maxProbes {
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if ok {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.cfg.successThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.successes = 0
	cb.failures++
	cb.openedAt = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.failureThreshold {
		cb.transition(StateOpen)
	}
}

// transition expects cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if cb.cfg.onStateChange != nil {
		cb.cfg.onStateChange(cb.name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) IsOpen() bool   { return cb.State() == StateOpen }
func (cb *CircuitBreaker) IsClosed() bool { return cb.State() == StateClosed }

// ─── Presets ────────────────────────────────────────────────────────────────

// CacheBreaker guards an optional cache: it opens fast and probes again soon,
// callers fall through to the primary store while it is open.
func CacheBreaker(name string, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(name,
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}

// DatabaseBreaker guards the primary store. Used by the readiness check.
func DatabaseBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("database",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithOnStateChange(onStateChange),
	)
}
