package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/bus"
	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/repo"
	"github.com/shaiso/Vertex/internal/telemetry"
)

// FlowStore — хранилище flows, необходимое цепочке.
// Реализуется *repo.FlowRepo.
type FlowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.FlowStatus, fields domain.TransitionFields) (*domain.Flow, error)
}

// Chain выполняет цепочку стадий одного flow.
//
// Chain — движок пайплайна, который:
//   - Переводит flow pending → running (через guarded transition)
//   - Выполняет стадии строго последовательно
//   - Публикует событие после каждой смены статуса и каждой стадии
//   - Перечитывает flow между стадиями для кооперативной отмены
//   - Финализирует flow (completed/failed)
//
// Поздний результат отменённого flow отбрасывается: терминальный
// переход защищён проверкой в хранилище, ErrInvalidTransition
// означает «нас опередили» и не считается ошибкой выполнения.
type Chain struct {
	store    FlowStore
	bus      bus.Bus
	executor *Executor
	logger   *slog.Logger
}

// ChainConfig — конфигурация Chain.
type ChainConfig struct {
	Store    FlowStore
	Bus      bus.Bus
	Executor *Executor
	Logger   *slog.Logger
}

// NewChain создаёт новую Chain.
func NewChain(cfg ChainConfig) *Chain {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Chain{
		store:    cfg.Store,
		bus:      cfg.Bus,
		executor: cfg.Executor,
		logger:   logger,
	}
}

// Run выполняет flow целиком, от pending до терминального статуса.
//
// Возвращает ошибку только при инфраструктурных проблемах (хранилище
// недоступно, контекст отменён посреди выполнения). Ошибки генерации
// финализируют flow как failed и ошибкой Run не являются.
func (c *Chain) Run(ctx context.Context, flowID uuid.UUID) error {
	logger := telemetry.WithFlowID(c.logger, flowID.String())

	flow, err := c.store.GetByID(ctx, flowID)
	if err != nil {
		return fmt.Errorf("get flow: %w", err)
	}

	if flow.IsFinished() {
		logger.Debug("flow already finished, skipping", "status", flow.Status)
		return nil
	}

	stages := domain.StagesFor(flow.FlowType)
	if stages == nil {
		// Невалидный тип не должен пройти валидацию API, но flow из БД
		// мы обязаны финализировать, а не крутить вечно.
		logger.Error("flow has unknown type", "flow_type", flow.FlowType)
		c.finalize(ctx, logger, flow, domain.FlowStatusFailed, domain.TransitionFields{
			Error: strPtr(ErrUnknownFlowType.Error()),
		})
		return nil
	}

	flow, err = c.store.Transition(ctx, flowID, domain.FlowStatusRunning, domain.TransitionFields{})
	if err != nil {
		if errors.Is(err, repo.ErrInvalidTransition) {
			// Flow отменили или подхватил другой воркер.
			logger.Info("flow is not runnable, skipping", "error", err)
			return nil
		}
		return fmt.Errorf("transition to running: %w", err)
	}

	telemetry.IncFlowStarted(flow.FlowType)
	c.publish(ctx, logger, domain.NewStatusEvent(flowID, domain.FlowStatusRunning, ""))

	logger.Info("chain started",
		"flow_type", flow.FlowType,
		"stages", len(stages),
	)

	var results []domain.StageResult
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			// Воркер останавливается: flow остаётся running,
			// его подберёт janitor или повторная доставка.
			return err
		}

		// Между стадиями перечитываем flow: отмена кооперативная.
		if i > 0 {
			current, err := c.store.GetByID(ctx, flowID)
			if err != nil {
				return fmt.Errorf("recheck flow: %w", err)
			}
			if current.Status != domain.FlowStatusRunning {
				logger.Info("flow no longer running, stopping chain",
					"status", current.Status,
					"completed_stages", i,
				)
				return nil
			}
		}

		result := c.executor.Run(ctx, stage, flow, results)

		// Последняя успешная стадия отдельного события не даёт:
		// её контент уходит подписчикам вместе со status:completed.
		// Для упавшей стадии событие диагностическое и публикуется всегда.
		if result.Status == domain.StageStatusFailed || i < len(stages)-1 {
			c.publish(ctx, logger, domain.NewStageEvent(flowID, result))
		}

		if result.Status == domain.StageStatusFailed {
			c.finalize(ctx, logger, flow, domain.FlowStatusFailed, domain.TransitionFields{
				Error: strPtr(result.Error),
			})
			return nil
		}

		results = append(results, result)
	}

	// Результат flow — контент последней стадии.
	final := results[len(results)-1].Content
	c.finalize(ctx, logger, flow, domain.FlowStatusCompleted, domain.TransitionFields{
		Result: strPtr(final),
	})
	return nil
}

// finalize выполняет guarded-переход в терминальный статус и публикует
// событие. Проигрыш гонки с отменой — штатная ситуация: поздний
// результат отбрасывается без события.
func (c *Chain) finalize(ctx context.Context, logger *slog.Logger, flow *domain.Flow, to domain.FlowStatus, fields domain.TransitionFields) {
	updated, err := c.store.Transition(ctx, flow.ID, to, fields)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidTransition) {
			logger.Info("discarding late result", "wanted", to, "error", err)
			return
		}
		logger.Error("failed to finalize flow", "wanted", to, "error", err)
		return
	}

	telemetry.IncFlowFinished(updated.FlowType, updated.Status)
	c.publish(ctx, logger, domain.NewStatusEvent(flow.ID, updated.Status, updated.Error))

	var execTime float64
	if updated.ExecutionTime != nil {
		execTime = *updated.ExecutionTime
	}
	logger.Info("chain finished",
		"status", updated.Status,
		"execution_time", execTime,
	)
}

// publish отправляет событие в канал flow. Доставка best-effort:
// ошибка шины логируется и не влияет на выполнение.
func (c *Chain) publish(ctx context.Context, logger *slog.Logger, event domain.Event) {
	if err := c.bus.Publish(ctx, domain.FlowChannel(event.FlowID), event); err != nil {
		logger.Warn("failed to publish event", "type", event.Type, "error", err)
	}
}

func strPtr(s string) *string {
	return &s
}
