package bus

import (
	"context"
	"sync"

	"github.com/shaiso/Vertex/internal/domain"
)

// subscriberBuffer — размер буфера на подписчика. Переполнение буфера
// означает потерю события для этого подписчика (at-most-once).
const subscriberBuffer = 64

// MemoryBus — внутрипроцессная реализация Bus.
//
// Используется в тестах и в single-process режиме (API и воркер
// в одном бинарнике). Канал перестаёт существовать, когда
// отписывается последний подписчик.
type MemoryBus struct {
	mu       sync.RWMutex
	channels map[string][]*memorySubscription
}

// NewMemoryBus создаёт новый MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		channels: make(map[string][]*memorySubscription),
	}
}

// Publish отправляет событие всем текущим подписчикам канала.
// Без подписчиков — no-op. Отправка неблокирующая: событие для
// подписчика с переполненным буфером отбрасывается.
func (b *MemoryBus) Publish(_ context.Context, channel string, event domain.Event) error {
	// Отправка под RLock: remove() берёт полный Lock, поэтому канал
	// подписчика не может закрыться посреди отправки.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.channels[channel] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe создаёт подписку на канал.
func (b *MemoryBus) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		bus:     b,
		channel: channel,
		events:  make(chan domain.Event, subscriberBuffer),
	}

	b.mu.Lock()
	b.channels[channel] = append(b.channels[channel], sub)
	b.mu.Unlock()

	return sub, nil
}

// SubscriberCount возвращает число подписчиков канала.
func (b *MemoryBus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// remove удаляет подписку; пустой канал забывается.
func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.channels[sub.channel]
	for i, s := range subs {
		if s == sub {
			b.channels[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.channels[sub.channel]) == 0 {
		delete(b.channels, sub.channel)
	}
}

// memorySubscription — подписка MemoryBus.
type memorySubscription struct {
	bus     *MemoryBus
	channel string
	events  chan domain.Event
	once    sync.Once
}

// Events возвращает канал событий.
func (s *memorySubscription) Events() <-chan domain.Event {
	return s.events
}

// Close отменяет подписку и закрывает поток событий.
func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.events)
	})
	return nil
}
