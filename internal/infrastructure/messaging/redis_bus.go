package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the Pub/Sub subset RedisEventBus uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message string) error
	Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, func() error, error)
}

type RedisMessage struct {
	Channel string
	Payload string
}

// RedisEventBusConfig configures NewRedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient
	// ChannelName defaults to "skillswap:events:all".
	ChannelName string
	// InstanceID tags outgoing envelopes so a process skips its own echo.
	// A random one is generated when empty.
	InstanceID     string
	LocalBusConfig InMemoryEventBusConfig
	Logger         *slog.Logger
}

// RedisEventBus delivers every event locally at once and mirrors it on a
// Redis channel, so badge and metrics handlers on other API instances see
// it too.
type RedisEventBus struct {
	local    *InMemoryEventBus
	client   RedisClient
	channel  string
	instance string
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	unsub    func() error
	listener sync.WaitGroup
	once     sync.Once
}

// NewRedisEventBus subscribes to the channel before returning.
func NewRedisEventBus(cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.ChannelName == "" {
		cfg.ChannelName = "skillswap:events:all"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LocalBusConfig.Logger == nil {
		cfg.LocalBusConfig.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, unsub, err := cfg.Client.Subscribe(ctx, cfg.ChannelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.ChannelName, err)
	}

	b := &RedisEventBus{
		local:    NewInMemoryEventBus(cfg.LocalBusConfig),
		client:   cfg.Client,
		channel:  cfg.ChannelName,
		instance: cfg.InstanceID,
		logger:   cfg.Logger.With("component", "redis_eventbus", "instance", cfg.InstanceID),
		ctx:      ctx,
		cancel:   cancel,
		unsub:    unsub,
	}
	b.listener.Add(1)
	go b.listen(messages)
	return b, nil
}

func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish delivers locally even when Redis is unreachable; the Redis error
// is only logged.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	if b.ctx.Err() != nil {
		return ErrEventBusClosed
	}

	data, err := EncodeEnvelope(event, b.instance)
	if err != nil {
		return err
	}
	if err := b.client.Publish(b.ctx, b.channel, string(data)); err != nil {
		b.logger.Error("failed to publish to redis", "event_type", event.EventType(), "error", err)
	}
	return b.local.Publish(event)
}

func (b *RedisEventBus) listen(messages <-chan RedisMessage) {
	defer b.listener.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, origin, err := DecodeEnvelope([]byte(msg.Payload))
			switch {
			case err != nil:
				b.logger.Error("failed to decode event", "error", err)
			case origin == b.instance:
				// own echo, already delivered locally
			default:
				if err := b.local.Publish(event); err != nil {
					b.logger.Warn("remote event dropped", "event_type", event.EventType(), "error", err)
				}
			}
		}
	}
}

// Drain waits for local async handlers.
func (b *RedisEventBus) Drain() {
	b.local.Drain()
}

func (b *RedisEventBus) Close() error {
	var err error
	b.once.Do(func() {
		b.cancel()
		if b.unsub != nil {
			if uerr := b.unsub(); uerr != nil {
				b.logger.Warn("failed to close subscription", "error", uerr)
			}
		}
		b.listener.Wait()
		err = b.local.Close()
	})
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type wireEnvelope struct {
	shared.EventEnvelope
	InstanceID string `json:"instance_id"`
}

// EncodeEnvelope serializes event as JSON for the Redis channel.
func EncodeEnvelope(event shared.Event, instanceID string) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(wireEnvelope{
		EventEnvelope: shared.EventEnvelope{
			ID:          uuid.NewString(),
			Type:        event.EventType(),
			AggregateID: event.AggregateID(),
			Timestamp:   event.OccurredAt(),
			Version:     1,
			Payload:     payload,
		},
		InstanceID: instanceID,
	})
}

// DecodeEnvelope rebuilds an event and reports which instance published it.
// The payload comes back as a generic map, so numbers are float64.
func DecodeEnvelope(data []byte) (shared.Event, string, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	var payload map[string]interface{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, "", fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return shared.EnvelopeEvent{
		BaseEvent: shared.BaseEvent{
			Type:          env.Type,
			Timestamp:     env.Timestamp,
			AggregateId:   env.AggregateID,
			Version:       env.Version,
			CorrelationID: env.CorrelationID,
		},
		Data: payload,
	}, env.InstanceID, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GO-REDIS ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// goRedisClient adapts go-redis Pub/Sub to RedisClient.
type goRedisClient struct {
	client goredis.UniversalClient
}

// NewGoRedisClient wraps a go-redis client for RedisEventBus.
func NewGoRedisClient(client goredis.UniversalClient) RedisClient {
	return &goRedisClient{client: client}
}

func (c *goRedisClient) Publish(ctx context.Context, channel string, message string) error {
	return c.client.Publish(ctx, channel, message).Err()
}

func (c *goRedisClient) Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, func() error, error) {
	pubsub := c.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, pubsub.Close, nil
}
