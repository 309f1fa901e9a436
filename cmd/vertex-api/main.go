// Vertex API — HTTP и WebSocket сервер платформы.
//
// API:
//   - REST endpoints для запуска, чтения и отмены flows
//   - WebSocket-шлюз live-обновлений (/ws/flows, /ws/agents, /ws/notifications)
//   - /healthz и /metrics
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/Vertex/internal/api"
	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/gateway"
	"github.com/shaiso/Vertex/internal/mq"
	"github.com/shaiso/Vertex/internal/repo"
	"github.com/shaiso/Vertex/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vertex_api_http_requests_total",
		Help: "Total HTTP requests handled by vertex_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting vertex-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	flowRepo := repo.NewFlowRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, workers will pick up flows via polling", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Event Bus: Redis для нескольких экземпляров, in-memory для одного.
	eventBus := newEventBus(logger)

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		FlowRepo:  flowRepo,
		Publisher: publisher,
		Bus:       eventBus,
		Logger:    logger,
	})

	// WebSocket-шлюз
	var auth gateway.Authenticator
	if token := os.Getenv("VERTEX_API_TOKEN"); token != "" {
		auth = gateway.NewStaticTokenAuth(token)
	} else {
		logger.Warn("VERTEX_API_TOKEN not set, websocket auth disabled")
	}

	gw := gateway.New(gateway.Config{
		Flows:  flowRepo,
		Bus:    eventBus,
		Auth:   auth,
		Logger: logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем маршруты
	handler.RegisterRoutes(mux)
	gw.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Закрываем WebSocket-соединения до остановки сервера:
	// Shutdown ждёт hijacked-соединения бесконечно.
	gw.Shutdown()

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// newEventBus выбирает реализацию Event Bus по окружению.
func newEventBus(logger *slog.Logger) bus.Bus {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, using in-memory event bus (single instance only)")
		return bus.NewMemoryBus()
	}

	client, err := bus.NewRedisClient(redisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("redis connected")
	return bus.NewRedisBus(client, logger)
}
