package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shaiso/Vertex/internal/domain"
)

// RedisBus — реализация Bus поверх Redis pub/sub.
//
// Используется, когда API и воркер — отдельные процессы: события
// оркестратора доходят до gateway через общий Redis. Семантика
// Redis pub/sub совпадает с контрактом Bus: fire-and-forget,
// без подписчиков сообщение пропадает, буферизации нет.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus создаёт RedisBus поверх готового клиента.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// NewRedisClient создаёт redis.Client по URL вида redis://host:port/db.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Publish сериализует событие в JSON и публикует в Redis-канал.
func (b *RedisBus) Publish(ctx context.Context, channel string, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	b.logger.Debug("published event",
		"channel", channel,
		"type", event.Type,
		"flow_id", event.FlowID,
	)
	return nil
}

// Subscribe создаёт подписку на Redis-канал.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Дожидаемся подтверждения подписки, чтобы события,
	// опубликованные сразу после Subscribe, не потерялись.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan domain.Event, subscriberBuffer),
	}

	go sub.pump(b.logger, channel)

	return sub, nil
}

// redisSubscription — подписка RedisBus.
type redisSubscription struct {
	pubsub *redis.PubSub
	events chan domain.Event
	once   sync.Once
}

// pump читает сообщения Redis и декодирует их в события.
// Завершается при закрытии pubsub.
func (s *redisSubscription) pump(logger *slog.Logger, channel string) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var event domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Warn("failed to decode event", "channel", channel, "error", err)
			continue
		}

		select {
		case s.events <- event:
		default:
			// Подписчик не успевает — событие отбрасывается (at-most-once).
		}
	}
}

// Events возвращает канал событий.
func (s *redisSubscription) Events() <-chan domain.Event {
	return s.events
}

// Close отменяет подписку.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
