package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/pkg/retry"
)

type observed struct {
	mu    sync.Mutex
	calls map[string]int
	errs  int
}

func (o *observed) EventHandled(eventType string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[eventType]++
	if err != nil {
		o.errs++
	}
}

func TestInMemoryEventBus_SyncRouting(t *testing.T) {
	obs := &observed{}
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Observer: obs})

	var sessions, all int
	require.NoError(t, bus.Subscribe(shared.EventSessionCompleted, func(shared.Event) error {
		sessions++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewSessionCompletedEvent("s1", "t", "l", "Go", 5, 60, 56)))
	require.NoError(t, bus.Publish(shared.NewRatesUpdatedEvent([]string{"Go"})))

	assert.Equal(t, 1, sessions)
	assert.Equal(t, 2, all)
	assert.Equal(t, 2, obs.calls["session.completed"])
	assert.Equal(t, 2, obs.errs)

	assert.ErrorIs(t, bus.Subscribe(shared.EventBadgeAwarded, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestInMemoryEventBus_AsyncDrainAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		n.Add(1)
		return nil
	}))
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewRatesUpdatedEvent(nil)))
	}
	bus.Drain()
	assert.Equal(t, int32(20), n.Load())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewRatesUpdatedEvent(nil)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	ev := shared.NewSessionCompletedEvent("s1", "teacher", "learner", "Go", 4.5, 60, 56)
	data, err := EncodeEnvelope(ev, "node-a")
	require.NoError(t, err)

	got, origin, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "node-a", origin)
	assert.Equal(t, shared.EventSessionCompleted, got.EventType())
	assert.Equal(t, "s1", got.AggregateID())
	assert.Equal(t, "teacher", got.Payload()["teacher_id"])
	assert.Equal(t, float64(56), got.Payload()["teacher_reward"])

	_, _, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}

// loopback delivers every published message to all subscribers, like one Redis channel.
type loopback struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

func (l *loopback) Publish(_ context.Context, channel, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		s <- RedisMessage{Channel: channel, Payload: message}
	}
	return nil
}

func (l *loopback) Subscribe(_ context.Context, _ string) (<-chan RedisMessage, func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	l.subs = append(l.subs, ch)
	return ch, func() error { return nil }, nil
}

func TestRedisEventBus_FansOutAcrossInstances(t *testing.T) {
	lb := &loopback{}
	a, err := NewRedisEventBus(RedisEventBusConfig{Client: lb, InstanceID: "a"})
	require.NoError(t, err)
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: lb, InstanceID: "b"})
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var onA, onB atomic.Int32
	require.NoError(t, a.Subscribe(shared.EventBadgeAwarded, func(shared.Event) error { onA.Add(1); return nil }))
	gotB := make(chan shared.Event, 1)
	require.NoError(t, b.Subscribe(shared.EventBadgeAwarded, func(e shared.Event) error {
		onB.Add(1)
		gotB <- e
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewBadgeAwardedEvent("alice", "first_session", "First Steps", "common", 5, false)))

	select {
	case e := <-gotB:
		assert.Equal(t, "alice", e.AggregateID())
	case <-time.After(2 * time.Second):
		t.Fatal("remote instance never received the event")
	}

	// The echo from Redis must not double local delivery.
	assert.Equal(t, int32(1), onA.Load())
	assert.Equal(t, int32(1), onB.Load())
}

func TestDispatcher_Middleware(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	d := NewDispatcher(bus, nil, 2)
	d.Use(
		RecoveryMiddleware(d.logger),
		RetryMiddleware(retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0))),
	)

	attempts := 0
	require.NoError(t, d.Subscribe(shared.EventSessionCompleted, func(shared.Event) error {
		attempts++
		if attempts < 3 {
			return shared.ErrLockNotAcquired
		}
		return nil
	}))
	require.NoError(t, d.Subscribe(shared.EventRatesUpdated, func(shared.Event) error {
		panic("bad handler")
	}))

	require.NoError(t, bus.Publish(shared.NewSessionCompletedEvent("s1", "t", "l", "Go", 5, 60, 56)))
	assert.Equal(t, 3, attempts)
	assert.Empty(t, d.DeadLetters())

	require.NoError(t, bus.Publish(shared.NewRatesUpdatedEvent(nil)))
	dead := d.DeadLetters()
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].Error.Error(), "handler panic")
}
