package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultConcurrency  = 4
	defaultPrefetch     = 5
)

// FlowSource — выборка flows для диспетчеризации.
// Реализуется *repo.FlowRepo.
type FlowSource interface {
	ListPending(ctx context.Context, limit int) ([]domain.Flow, error)
}

// Runner выполняет один flow от pending до терминального статуса.
// Реализуется *pipeline.Chain.
type Runner interface {
	Run(ctx context.Context, flowID uuid.UUID) error
}

// Worker диспетчеризует выполнение flows.
type Worker struct {
	flows  FlowSource
	runner Runner

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Active flows — flows в процессе выполнения на этом экземпляре.
	activeFlows map[uuid.UUID]struct{}
	mu          sync.RWMutex

	// Semaphore параллелизма.
	sem chan struct{}

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Источник flows и исполнитель.
	Flows  FlowSource
	Runner Runner

	// MQ. Conn может быть nil — тогда работает только polling.
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество flows за один poll (default: 50)

	// Concurrency — максимум одновременно выполняемых flows (default: 4).
	Concurrency int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		flows:        cfg.Flows,
		runner:       cfg.Runner,
		conn:         cfg.Conn,
		activeFlows:  make(map[uuid.UUID]struct{}),
		sem:          make(chan struct{}, concurrency),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для flows.submitted (если есть подключение к MQ)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"concurrency", cap(w.sem),
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueFlowsSubmitted,
			Handler:  w.handleFlowSubmitted,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("flow consumer error", "error", err)
			}
		}()
	} else {
		w.logger.Warn("mq connection not available, running in polling-only mode")
	}

	// Запускаем polling
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и дожидается активных flows.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleFlowSubmitted обрабатывает событие о новом flow из очереди.
func (w *Worker) handleFlowSubmitted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.FlowSubmittedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse flow.submitted payload", "error", err)
		return err
	}

	w.logger.Debug("received flow.submitted event",
		"flow_id", payload.FlowID,
		"project_id", payload.ProjectID,
	)

	if err := w.dispatch(ctx, payload.FlowID); err != nil {
		// Уже в работе — штатная ситуация при двойной доставке (ack).
		if errors.Is(err, ErrFlowAlreadyActive) {
			w.logger.Debug("flow already active, skipping", "flow_id", payload.FlowID)
			return nil
		}
		return err
	}

	return nil
}

// dispatch запускает выполнение flow в отдельной горутине.
//
// Блокируется, пока семафор занят: backpressure на consumer и polling.
func (w *Worker) dispatch(ctx context.Context, flowID uuid.UUID) error {
	if !w.addActiveFlow(flowID) {
		return ErrFlowAlreadyActive
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		w.removeActiveFlow(flowID)
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		defer w.removeActiveFlow(flowID)

		if err := w.runner.Run(ctx, flowID); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("flow execution error", "flow_id", flowID, "error", err)
		}
	}()

	return nil
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем flows созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	flows, err := w.flows.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending flows", "error", err)
		return
	}

	if len(flows) == 0 {
		return
	}

	w.logger.Debug("poll found pending flows", "count", len(flows))

	for i := range flows {
		flow := &flows[i]

		if err := w.dispatch(ctx, flow.ID); err != nil {
			if errors.Is(err, ErrFlowAlreadyActive) {
				continue
			}
			w.logger.Error("failed to dispatch flow from poll",
				"flow_id", flow.ID,
				"error", err,
			)
			return
		}
	}
}

// addActiveFlow добавляет flow в активные.
// Возвращает false, если flow уже выполняется.
func (w *Worker) addActiveFlow(flowID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.activeFlows[flowID]; exists {
		return false
	}

	w.activeFlows[flowID] = struct{}{}
	return true
}

// removeActiveFlow удаляет flow из активных.
func (w *Worker) removeActiveFlow(flowID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activeFlows, flowID)
}

// ActiveFlowsCount возвращает количество активных flows.
func (w *Worker) ActiveFlowsCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.activeFlows)
}
