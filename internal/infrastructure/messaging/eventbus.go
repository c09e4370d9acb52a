// Package messaging carries domain events between the command side and the
// reactive handlers: an in-process bus, a Redis Pub/Sub fan-out across API
// instances and a middleware dispatcher on top of either.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrNilHandler     = errors.New("handler cannot be nil")
	ErrNilEvent       = errors.New("event cannot be nil")
)

// HandlerObserver receives handler outcomes. metrics.Recorder implements it.
type HandlerObserver interface {
	EventHandled(eventType string, took time.Duration, err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures NewInMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on background goroutines, at most
	// WorkerPoolSize at a time. Otherwise Publish returns after every
	// handler has run.
	AsyncMode      bool
	WorkerPoolSize int

	Logger   *slog.Logger
	Observer HandlerObserver
}

// InMemoryEventBus routes events to handlers inside one process. Handler
// errors are logged and reported to the observer; they never reach the
// publisher.
type InMemoryEventBus struct {
	async    bool
	workers  *semaphore.Weighted
	logger   *slog.Logger
	observer HandlerObserver

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	// stop cancels workers still waiting for a slot on Close.
	stop     context.Context
	stopFn   context.CancelFunc
	inflight sync.WaitGroup
}

func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	stop, stopFn := context.WithCancel(context.Background())
	return &InMemoryEventBus{
		async:    cfg.AsyncMode,
		workers:  semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		logger:   cfg.Logger.With("component", "eventbus"),
		observer: cfg.Observer,
		byType:   make(map[shared.EventType][]shared.EventHandler),
		stop:     stop,
		stopFn:   stopFn,
	}
}

func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.register(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers a handler that sees every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.register(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *InMemoryEventBus) register(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers event to its type's handlers, then to the wildcard ones.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	targets := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	targets = append(append(targets, typed...), b.wildcard...)
	// Counted under the lock so Close always waits for them.
	if b.async {
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	for _, h := range targets {
		if !b.async {
			b.run(event, h)
			continue
		}
		go func(h shared.EventHandler) {
			defer b.inflight.Done()
			if err := b.workers.Acquire(b.stop, 1); err != nil {
				return
			}
			defer b.workers.Release(1)
			b.run(event, h)
		}(h)
	}
	return nil
}

func (b *InMemoryEventBus) run(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := h(event)
	took := time.Since(start)

	if b.observer != nil {
		b.observer.EventHandled(string(event.EventType()), took, err)
	}
	if err != nil {
		b.logger.Error("handler error",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"duration", took,
			"error", err,
		)
	}
}

// Drain blocks until every async delivery published so far has finished.
func (b *InMemoryEventBus) Drain() {
	b.inflight.Wait()
}

// Close rejects new publishes, lets running handlers finish and drops the
// ones still waiting for a worker.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.stopFn()
	b.inflight.Wait()
	b.logger.Info("event bus closed")
	return nil
}
