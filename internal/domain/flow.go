package domain

import (
	"time"

	"github.com/google/uuid"
)

// FlowType — тип пайплайна.
type FlowType string

const (
	// FlowTypeStrategy — одиночная стадия strategy.
	FlowTypeStrategy FlowType = "strategy"

	// FlowTypeContent — одиночная стадия content.
	FlowTypeContent FlowType = "content"

	// FlowTypeCommunity — одиночная стадия community.
	FlowTypeCommunity FlowType = "community"

	// FlowTypeComposite — полный DevRel-пайплайн:
	// strategy → content → community → analytics.
	FlowTypeComposite FlowType = "analytics-composite"
)

// IsValid возвращает true для известного типа flow.
func (t FlowType) IsValid() bool {
	switch t {
	case FlowTypeStrategy, FlowTypeContent, FlowTypeCommunity, FlowTypeComposite:
		return true
	default:
		return false
	}
}

// Flow — один запуск агентного пайплайна для проекта.
//
// Flow создаётся один раз обработчиком запроса (статус pending),
// дальше мутируется только оркестратором (статус, таймстемпы,
// результат/ошибка) или явным запросом на отмену. Пайплайн сам
// никогда не удаляет flow.
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект, для которого запущен пайплайн.
	ProjectID uuid.UUID `json:"project_id"`

	// FlowType — тип пайплайна (какие стадии выполнять).
	FlowType FlowType `json:"flow_type"`

	// Prompt — исходный запрос пользователя для первой стадии.
	Prompt string `json:"prompt"`

	// Status — текущий статус выполнения.
	Status FlowStatus `json:"status"`

	// Parameters — произвольные параметры запуска (key/value).
	Parameters map[string]any `json:"parameters,omitempty"`

	// Priority — информационный приоритет (не влияет на порядок
	// обработки внутри воркера).
	Priority int `json:"priority"`

	// CreatedAt — время создания flow.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала выполнения (когда статус стал running).
	// Nil, пока flow не покинул pending.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения. Устанавливается iff статус
	// терминальный (completed/failed/cancelled).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result — финальный текст пайплайна. Установлен iff completed.
	Result string `json:"result,omitempty"`

	// Error — текст ошибки. Установлен iff failed или cancelled.
	Error string `json:"error,omitempty"`

	// ExecutionTime — длительность выполнения в секундах.
	// Присутствует только вместе с CompletedAt.
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

// IsFinished возвращает true, если flow в терминальном статусе.
func (f *Flow) IsFinished() bool {
	return f.Status.IsTerminal()
}

// MarkRunning переводит flow в статус running.
func (f *Flow) MarkRunning() {
	now := time.Now()
	f.Status = FlowStatusRunning
	f.StartedAt = &now
}

// MarkCompleted переводит flow в статус completed с результатом.
func (f *Flow) MarkCompleted(result string) {
	now := time.Now()
	f.Status = FlowStatusCompleted
	f.CompletedAt = &now
	f.Result = result
	f.setExecutionTime(now)
}

// MarkFailed переводит flow в статус failed с ошибкой.
func (f *Flow) MarkFailed(errMsg string) {
	now := time.Now()
	f.Status = FlowStatusFailed
	f.CompletedAt = &now
	f.Error = errMsg
	f.setExecutionTime(now)
}

// MarkCancelled переводит flow в статус cancelled.
// Error заполняется, чтобы выполнялся инвариант "ровно одно из
// result/error у терминального flow".
func (f *Flow) MarkCancelled() {
	now := time.Now()
	f.Status = FlowStatusCancelled
	f.CompletedAt = &now
	f.Error = "cancelled"
	f.setExecutionTime(now)
}

// setExecutionTime вычисляет execution_time, если известно время старта.
// Для flow, отменённого из pending, StartedAt пуст — execution_time
// не заполняется.
func (f *Flow) setExecutionTime(completed time.Time) {
	if f.StartedAt == nil {
		return
	}
	secs := completed.Sub(*f.StartedAt).Seconds()
	f.ExecutionTime = &secs
}

// TransitionFields — поля, заполняемые хранилищем при переходе
// в терминальный статус.
type TransitionFields struct {
	// Result — финальный результат (для completed).
	Result *string

	// Error — текст ошибки (для failed; для cancelled хранилище
	// подставляет "cancelled" само).
	Error *string
}
