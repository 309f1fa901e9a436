package bus

import (
	"context"

	"github.com/shaiso/Vertex/internal/domain"
)

// Bus — pub/sub примитив с именованными каналами.
//
// Контракт:
//   - Publish best-effort и не блокирует публикующего: без подписчиков
//     событие молча отбрасывается, буферизации для опоздавших нет.
//   - Внутри одного канала события доставляются каждому подписчику
//     в порядке публикации; между каналами порядок не гарантируется.
//   - Доставка at-most-once: медленный или отвалившийся подписчик
//     может потерять события.
type Bus interface {
	// Publish публикует событие в канал.
	Publish(ctx context.Context, channel string, event domain.Event) error

	// Subscribe создаёт подписку на канал. Закрытие подписки
	// (или обрыв соединения) завершает поток событий.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription — активная подписка на один канал.
type Subscription interface {
	// Events возвращает канал событий. Закрывается после Close.
	Events() <-chan domain.Event

	// Close отменяет подписку и освобождает ресурсы.
	// Повторный вызов безопасен.
	Close() error
}
