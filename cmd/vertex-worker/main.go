// Vertex Worker — выполняет агентные пайплайны.
//
// Worker:
//   - Получает flows из RabbitMQ (polling fallback через БД)
//   - Выполняет стадии пайплайна через LLM-клиент
//   - Публикует события выполнения в Event Bus
//   - Периодически фейлит зависшие running flows (janitor)
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/llm"
	"github.com/shaiso/Vertex/internal/mq"
	"github.com/shaiso/Vertex/internal/pipeline"
	"github.com/shaiso/Vertex/internal/repo"
	"github.com/shaiso/Vertex/internal/telemetry"
	"github.com/shaiso/Vertex/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting vertex-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	flowRepo := repo.NewFlowRepo(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Event Bus
	eventBus := newEventBus(logger)

	// LLM-клиент
	llmClient, err := llm.NewOpenAIClient(llm.OpenAIConfigFromEnv(), logger)
	if err != nil {
		logger.Error("failed to create llm client", "error", err)
		os.Exit(1)
	}

	// Пайплайн
	chain := pipeline.NewChain(pipeline.ChainConfig{
		Store: flowRepo,
		Bus:   eventBus,
		Executor: pipeline.NewExecutor(pipeline.ExecutorConfig{
			Client:       llmClient,
			StageTimeout: envDuration("STAGE_TIMEOUT_SEC", 0),
			Logger:       logger,
		}),
		Logger: logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Flows:       flowRepo,
		Runner:      chain,
		Conn:        mqConn,
		Concurrency: envInt("WORKER_CONCURRENCY", 0),
		Logger:      logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Janitor
	janitor := worker.NewJanitor(worker.JanitorConfig{
		Store:     flowRepo,
		Bus:       eventBus,
		Schedule:  os.Getenv("REAP_CRON"),
		MaxRunAge: envDuration("MAX_RUN_AGE_SEC", 0),
		Logger:    logger,
	})
	if err := janitor.Start(ctx); err != nil {
		logger.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	janitor.Stop()
	w.Stop()
	logger.Info("vertex-worker stopped")
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

// envInt читает числовую переменную окружения.
func envInt(name string, defaultVal int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// envDuration читает переменную окружения в секундах.
func envDuration(name string, defaultVal time.Duration) time.Duration {
	secs := envInt(name, 0)
	if secs <= 0 {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
