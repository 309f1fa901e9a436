package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shaiso/Vertex/internal/bus"
)

// hub держит по одной подписке Event Bus на канал и рассылает
// приходящие события через Registry.Broadcast.
//
// Подписка создаётся, когда на канал приходит первое соединение,
// и закрывается, когда уходит последнее. Несколько клиентов одного
// flow делят одну подписку.
type hub struct {
	bus      bus.Bus
	registry *Registry
	logger   *slog.Logger

	mu    sync.Mutex
	feeds map[string]*channelFeed
}

type channelFeed struct {
	sub  bus.Subscription
	refs int
}

func newHub(b bus.Bus, registry *Registry, logger *slog.Logger) *hub {
	return &hub{
		bus:      b,
		registry: registry,
		logger:   logger,
		feeds:    make(map[string]*channelFeed),
	}
}

// acquire подключает канал: первая ссылка создаёт подписку и relay-горутину.
func (h *hub) acquire(ctx context.Context, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if feed, ok := h.feeds[channel]; ok {
		feed.refs++
		return nil
	}

	sub, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	h.feeds[channel] = &channelFeed{sub: sub, refs: 1}

	go h.relay(channel, sub)
	return nil
}

// release отпускает канал: последняя ссылка закрывает подписку,
// что завершает relay-горутину.
func (h *hub) release(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, ok := h.feeds[channel]
	if !ok {
		return
	}
	feed.refs--
	if feed.refs > 0 {
		return
	}
	feed.sub.Close()
	delete(h.feeds, channel)
}

// relay гонит события подписки в соединения канала.
func (h *hub) relay(channel string, sub bus.Subscription) {
	for ev := range sub.Events() {
		h.registry.Broadcast(channel, eventFrame(ev))
	}
}
