package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/repo"
	"github.com/shaiso/Vertex/internal/telemetry"
)

// Default janitor configuration.
const (
	defaultReapSchedule = "*/5 * * * *"
	defaultMaxRunAge    = 30 * time.Minute
	defaultReapBatch    = 100
)

// StaleStore — операции хранилища, необходимые janitor'у.
// Реализуется *repo.FlowRepo.
type StaleStore interface {
	ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]domain.Flow, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.FlowStatus, fields domain.TransitionFields) (*domain.Flow, error)
}

// Janitor по расписанию фейлит зависшие running flows.
//
// Flow считается зависшим, если он в статусе running дольше MaxRunAge:
// выполнявший его worker упал, не доведя flow до терминального статуса.
// Janitor переводит такой flow в failed с ошибкой "timeout" и публикует
// событие, чтобы подписанные клиенты не ждали вечно.
type Janitor struct {
	store  StaleStore
	bus    bus.Bus
	cron   *cron.Cron
	logger *slog.Logger

	schedule  string
	maxRunAge time.Duration
	batchSize int
}

// JanitorConfig — конфигурация Janitor.
type JanitorConfig struct {
	Store StaleStore
	Bus   bus.Bus

	// Schedule — cron-выражение запуска уборки (default: "*/5 * * * *").
	Schedule string

	// MaxRunAge — максимальный возраст running flow (default: 30m).
	MaxRunAge time.Duration

	// BatchSize — количество flows за одну уборку (default: 100).
	BatchSize int

	// Logger
	Logger *slog.Logger
}

// NewJanitor создаёт новый Janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultReapSchedule
	}

	maxRunAge := cfg.MaxRunAge
	if maxRunAge <= 0 {
		maxRunAge = defaultMaxRunAge
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReapBatch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		store:     cfg.Store,
		bus:       cfg.Bus,
		logger:    logger,
		schedule:  schedule,
		maxRunAge: maxRunAge,
		batchSize: batchSize,
	}
}

// Start запускает расписание уборки.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New()

	_, err := j.cron.AddFunc(j.schedule, func() {
		j.Reap(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("janitor started",
		"schedule", j.schedule,
		"max_run_age", j.maxRunAge,
	)
	return nil
}

// Stop останавливает расписание и дожидается текущей уборки.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Reap выполняет один проход уборки.
//
// Ошибка одного flow не блокирует обработку остальных.
func (j *Janitor) Reap(ctx context.Context) {
	cutoff := time.Now().Add(-j.maxRunAge)

	flows, err := j.store.ListStaleRunning(ctx, cutoff, j.batchSize)
	if err != nil {
		j.logger.Error("failed to list stale flows", "error", err)
		return
	}

	if len(flows) == 0 {
		return
	}

	j.logger.Warn("found stale running flows", "count", len(flows))

	errMsg := "timeout"
	for i := range flows {
		flow := &flows[i]

		updated, err := j.store.Transition(ctx, flow.ID, domain.FlowStatusFailed, domain.TransitionFields{
			Error: &errMsg,
		})
		if err != nil {
			// Flow успел завершиться между выборкой и переходом.
			if errors.Is(err, repo.ErrInvalidTransition) {
				continue
			}
			j.logger.Error("failed to reap flow", "flow_id", flow.ID, "error", err)
			continue
		}

		telemetry.IncFlowsReaped()
		telemetry.IncFlowFinished(updated.FlowType, updated.Status)

		event := domain.NewStatusEvent(flow.ID, updated.Status, updated.Error)
		if err := j.bus.Publish(ctx, domain.FlowChannel(flow.ID), event); err != nil {
			j.logger.Warn("failed to publish reap event", "flow_id", flow.ID, "error", err)
		}

		j.logger.Info("reaped stale flow",
			"flow_id", flow.ID,
			"started_at", flow.StartedAt,
		)
	}
}
