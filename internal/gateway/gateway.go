package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/repo"
	"github.com/shaiso/Vertex/internal/telemetry"
)

// FlowGetter — выборка flow для снимка статуса при подключении.
// Реализуется *repo.FlowRepo.
type FlowGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error)
}

// Gateway — WebSocket-шлюз live-обновлений.
type Gateway struct {
	flows    FlowGetter
	auth     Authenticator
	registry *Registry
	hub      *hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Config — конфигурация Gateway.
type Config struct {
	Flows FlowGetter
	Bus   bus.Bus

	// Auth — аутентификатор (опционально; если nil — AllowAll).
	Auth Authenticator

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Gateway.
func New(cfg Config) *Gateway {
	auth := cfg.Auth
	if auth == nil {
		auth = AllowAll{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry(logger)
	return &Gateway{
		flows:    cfg.Flows,
		auth:     auth,
		registry: registry,
		hub:      newHub(cfg.Bus, registry, logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Registry возвращает учёт соединений шлюза.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Shutdown закрывает все открытые соединения.
func (g *Gateway) Shutdown() {
	g.registry.CloseAll()
}

// RegisterRoutes регистрирует WebSocket-маршруты.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/flows/{id}", g.HandleFlow)
	mux.HandleFunc("GET /ws/agents/{id}", g.HandleAgent)
	mux.HandleFunc("GET /ws/notifications", g.HandleNotifications)
}

// HandleFlow подключает клиента к каналу событий flow.
// GET /ws/flows/{id}
func (g *Gateway) HandleFlow(w http.ResponseWriter, r *http.Request) {
	if err := g.auth.Authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid flow id", http.StatusBadRequest)
		return
	}

	// Снимок до upgrade: несуществующий flow — это 404, а не пустой канал.
	flow, err := g.flows.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "flow not found", http.StatusNotFound)
			return
		}
		g.logger.Error("failed to load flow for ws", "flow_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	g.serve(w, r, domain.FlowChannel(id), flow)
}

// HandleAgent подключает клиента к каналу событий агента.
// GET /ws/agents/{id}
func (g *Gateway) HandleAgent(w http.ResponseWriter, r *http.Request) {
	if err := g.auth.Authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	g.serve(w, r, domain.AgentChannel(id), nil)
}

// HandleNotifications подключает клиента к каналу его уведомлений.
// GET /ws/notifications?user_id=...
func (g *Gateway) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if err := g.auth.Authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	g.serve(w, r, domain.NotificationsChannel(userID), nil)
}

// serve выполняет upgrade и привязывает соединение к каналу.
//
// Подписка канала оформляется до upgrade: событие, опубликованное
// между upgrade и подпиской, иначе было бы потеряно. События доставляет
// hub через Registry.Broadcast, поэтому цикл здесь читает только
// входящие кадры клиента.
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, channel string, flow *domain.Flow) {
	logger := g.logger.With("channel", channel, "remote_addr", r.RemoteAddr)

	if err := g.hub.acquire(r.Context(), channel); err != nil {
		logger.Error("failed to subscribe", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade connection", "error", err)
		g.hub.release(channel)
		return
	}

	conn := newConn(ws)
	g.registry.Register(conn, channel)
	telemetry.IncWSConnections()
	logger.Info("ws client connected")

	defer func() {
		g.registry.Unregister(conn)
		g.hub.release(channel)
		telemetry.DecWSConnections()
		conn.Close()
		logger.Info("ws client disconnected")
	}()

	if err := conn.WriteJSON(connectionFrame(channel, flow)); err != nil {
		logger.Warn("failed to write connection frame", "error", err)
		return
	}

	// Ping получает pong немедленно, вперёд накопившихся событий.
	// Неизвестные кадры игнорируются.
	for {
		var frame inboundFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type == "ping" {
			if err := conn.WriteJSON(pongFrame()); err != nil {
				return
			}
		}
	}
}
