package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Vertex/internal/domain"
)

// FlowRepo — репозиторий для работы с flows.
//
// Все мутации статуса идут через Transition: переход валидируется
// по state machine внутри транзакции с блокировкой строки
// (SELECT ... FOR UPDATE), поэтому конкурентные попытки сериализуются —
// ровно одна выигрывает, остальные видят уже новый статус и получают
// ErrInvalidTransition.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

const flowColumns = `
	id, project_id, flow_type, prompt, status, parameters, priority,
	created_at, started_at, completed_at, result, error, execution_time
`

// Create создаёт новый flow (статус pending).
func (r *FlowRepo) Create(ctx context.Context, flow *domain.Flow) error {
	paramsJSON, err := json.Marshal(flow.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	query := `
		INSERT INTO flows (id, project_id, flow_type, prompt, status, parameters, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		flow.ID,
		flow.ProjectID,
		flow.FlowType,
		flow.Prompt,
		flow.Status,
		paramsJSON,
		flow.Priority,
		flow.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return nil
}

// GetByID возвращает flow по ID.
func (r *FlowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1`
	return scanFlow(r.pool.QueryRow(ctx, query, id))
}

// FlowFilter — параметры фильтрации flows.
type FlowFilter struct {
	ProjectID *uuid.UUID
	Status    domain.FlowStatus
	Limit     int
	Offset    int
}

// List возвращает список flows с фильтрацией.
func (r *FlowRepo) List(ctx context.Context, filter FlowFilter) ([]domain.Flow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE ($1::uuid IS NULL OR project_id = $1)
		  AND ($2::text IS NULL OR status = $2::flow_status)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.ProjectID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	return collectFlows(rows)
}

// ListPending возвращает flows в статусе pending (для polling fallback воркера).
func (r *FlowRepo) ListPending(ctx context.Context, limit int) ([]domain.Flow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending flows: %w", err)
	}
	defer rows.Close()

	return collectFlows(rows)
}

// ListStaleRunning возвращает flows, зависшие в running дольше заданного
// времени (воркер умер, не доведя пайплайн до терминального статуса).
func (r *FlowRepo) ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]domain.Flow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE status = 'running' AND started_at < $1
		ORDER BY started_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale running flows: %w", err)
	}
	defer rows.Close()

	return collectFlows(rows)
}

// Transition переводит flow в новый статус с валидацией по state machine.
//
// Строка блокируется на время транзакции, проверка CanTransition идёт
// по актуальному статусу. Запрещённый переход возвращает
// ErrInvalidTransition; вызывающий при этом может перечитать flow
// и увидеть победивший статус.
func (r *FlowRepo) Transition(ctx context.Context, id uuid.UUID, to domain.FlowStatus, fields domain.TransitionFields) (*domain.Flow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1 FOR UPDATE`
	flow, err := scanFlow(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(flow.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, flow.Status, to)
	}

	switch to {
	case domain.FlowStatusRunning:
		flow.MarkRunning()
	case domain.FlowStatusCompleted:
		var result string
		if fields.Result != nil {
			result = *fields.Result
		}
		flow.MarkCompleted(result)
	case domain.FlowStatusFailed:
		errMsg := "failed"
		if fields.Error != nil {
			errMsg = *fields.Error
		}
		flow.MarkFailed(errMsg)
	case domain.FlowStatusCancelled:
		flow.MarkCancelled()
	default:
		return nil, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, to)
	}

	update := `
		UPDATE flows
		SET status = $2, started_at = $3, completed_at = $4,
		    result = $5, error = $6, execution_time = $7
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update,
		flow.ID,
		flow.Status,
		flow.StartedAt,
		flow.CompletedAt,
		nullString(flow.Result),
		nullString(flow.Error),
		flow.ExecutionTime,
	); err != nil {
		return nil, fmt.Errorf("update flow: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return flow, nil
}

// Cancel отменяет flow. Успешна только из pending/running,
// иначе возвращает ErrInvalidTransition.
func (r *FlowRepo) Cancel(ctx context.Context, id uuid.UUID) (*domain.Flow, error) {
	return r.Transition(ctx, id, domain.FlowStatusCancelled, domain.TransitionFields{})
}

// --- Helpers ---

// scanFlow сканирует одну строку в Flow.
func scanFlow(row pgx.Row) (*domain.Flow, error) {
	var flow domain.Flow
	var paramsJSON []byte
	var result, flowErr *string

	err := row.Scan(
		&flow.ID,
		&flow.ProjectID,
		&flow.FlowType,
		&flow.Prompt,
		&flow.Status,
		&paramsJSON,
		&flow.Priority,
		&flow.CreatedAt,
		&flow.StartedAt,
		&flow.CompletedAt,
		&result,
		&flowErr,
		&flow.ExecutionTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &flow.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if result != nil {
		flow.Result = *result
	}
	if flowErr != nil {
		flow.Error = *flowErr
	}

	return &flow, nil
}

// collectFlows сканирует все строки результата в слайс Flow.
func collectFlows(rows pgx.Rows) ([]domain.Flow, error) {
	var flows []domain.Flow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
