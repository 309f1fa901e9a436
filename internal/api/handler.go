package api

import (
	"log/slog"

	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/mq"
	"github.com/shaiso/Vertex/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	flowRepo  *repo.FlowRepo
	publisher *mq.Publisher
	bus       bus.Bus
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	FlowRepo  *repo.FlowRepo
	Publisher *mq.Publisher
	Bus       bus.Bus
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		flowRepo:  cfg.FlowRepo,
		publisher: cfg.Publisher,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
	}
}
