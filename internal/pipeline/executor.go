package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Vertex/internal/domain"
	"github.com/shaiso/Vertex/internal/llm"
	"github.com/shaiso/Vertex/internal/telemetry"
)

// defaultStageTimeout — таймаут одной стадии по умолчанию.
const defaultStageTimeout = 120 * time.Second

// Executor выполняет одну стадию пайплайна.
//
// Executor никогда не возвращает ошибку наружу: любой отказ генерации
// превращается в StageResult со статусом failed и короткой причиной
// в поле Error. Решение «валить ли весь flow» принимает цепочка.
type Executor struct {
	client  llm.Client
	timeout time.Duration
	logger  *slog.Logger
}

// ExecutorConfig — конфигурация Executor.
type ExecutorConfig struct {
	// Client — клиент генерации.
	Client llm.Client

	// StageTimeout — таймаут одной стадии (default: 120s).
	StageTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// NewExecutor создаёт новый Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	timeout := cfg.StageTimeout
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		client:  cfg.Client,
		timeout: timeout,
		logger:  logger,
	}
}

// Run выполняет стадию stage для flow с учётом результатов prior.
func (e *Executor) Run(ctx context.Context, stage domain.StageName, flow *domain.Flow, prior []domain.StageResult) domain.StageResult {
	spec, err := SpecFor(stage)
	if err != nil {
		return domain.StageResult{
			StageName: stage,
			Status:    domain.StageStatusFailed,
			Error:     err.Error(),
		}
	}

	logger := telemetry.WithFlowID(e.logger, flow.ID.String()).With("stage", string(stage))
	logger.Info("stage started")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	content, err := e.client.Generate(ctx, spec.UserPrompt(flow.Prompt, prior), llm.GenerationParams{
		System: spec.SystemPrompt(),
	})
	duration := time.Since(start)

	if err != nil {
		reason := llm.ReasonMalformed
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) {
			reason = genErr.Reason
		}

		logger.Error("stage failed",
			"reason", reason,
			"duration", duration,
		)
		telemetry.ObserveStageDuration(stage, string(domain.StageStatusFailed), duration)

		return domain.StageResult{
			StageName: stage,
			Status:    domain.StageStatusFailed,
			Error:     reason,
		}
	}

	logger.Info("stage completed", "duration", duration)
	telemetry.ObserveStageDuration(stage, string(domain.StageStatusCompleted), duration)

	return domain.StageResult{
		StageName: stage,
		Status:    domain.StageStatusCompleted,
		Content:   content,
	}
}
