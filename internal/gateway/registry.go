package gateway

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn — WebSocket-соединение с собственным мьютексом записи.
//
// В соединение пишут две стороны: Broadcast из горутины канала и
// обработчик ping из цикла чтения. Мьютекс сериализует записи,
// как того требует gorilla/websocket.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteJSON пишет кадр в соединение.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Close закрывает соединение. Повторный вызов безопасен.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Registry — учёт открытых соединений по каналам.
//
// Регистрация, отписка и итерация Broadcast атомарны друг
// относительно друга. Глобального состояния нет: реестр создаётся
// шлюзом и инжектируется туда, где нужен.
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Conn]string // conn → channel
	logger *slog.Logger
}

// NewRegistry создаёт новый Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[*Conn]string),
		logger: logger,
	}
}

// Register добавляет соединение на канал.
func (r *Registry) Register(conn *Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = channel
}

// Unregister удаляет соединение.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

// Broadcast рассылает кадр всем соединениям канала. Возвращает число
// успешных доставок.
//
// Ошибка записи в одно соединение не прерывает доставку остальным:
// мёртвое соединение закрывается и удаляется из реестра.
func (r *Registry) Broadcast(channel string, v any) int {
	r.mu.RLock()
	targets := make([]*Conn, 0, 4)
	for conn, ch := range r.conns {
		if ch == channel {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.WriteJSON(v); err != nil {
			r.logger.Debug("pruning dead connection", "channel", channel, "error", err)
			conn.Close()
			r.Unregister(conn)
			continue
		}
		delivered++
	}
	return delivered
}

// Count возвращает общее количество соединений.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountChannel возвращает количество соединений на канале.
func (r *Registry) CountChannel(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ch := range r.conns {
		if ch == channel {
			n++
		}
	}
	return n
}

// CloseAll закрывает все соединения и очищает реестр.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.conns {
		conn.Close()
	}
	r.conns = make(map[*Conn]string)
}
