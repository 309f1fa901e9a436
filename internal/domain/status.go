package domain

// FlowStatus — статус выполнения flow.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	          (или) → cancelled (из pending или running)
type FlowStatus string

const (
	// FlowStatusPending — flow создан, но ещё не начал выполняться.
	FlowStatusPending FlowStatus = "pending"

	// FlowStatusRunning — пайплайн в процессе выполнения.
	FlowStatusRunning FlowStatus = "running"

	// FlowStatusCompleted — все стадии успешно завершены.
	FlowStatusCompleted FlowStatus = "completed"

	// FlowStatusFailed — одна из стадий завершилась ошибкой.
	FlowStatusFailed FlowStatus = "failed"

	// FlowStatusCancelled — flow отменён пользователем.
	FlowStatusCancelled FlowStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный (flow завершён).
// Из терминального статуса переходы запрещены.
func (s FlowStatus) IsTerminal() bool {
	switch s {
	case FlowStatusCompleted, FlowStatusFailed, FlowStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid возвращает true для известного статуса.
func (s FlowStatus) IsValid() bool {
	switch s {
	case FlowStatusPending, FlowStatusRunning,
		FlowStatusCompleted, FlowStatusFailed, FlowStatusCancelled:
		return true
	default:
		return false
	}
}

// transitions — таблица разрешённых переходов статусов.
var transitions = map[FlowStatus][]FlowStatus{
	FlowStatusPending: {FlowStatusRunning, FlowStatusCancelled},
	FlowStatusRunning: {FlowStatusCompleted, FlowStatusFailed, FlowStatusCancelled},
}

// CanTransition проверяет, разрешён ли переход from → to.
// Единственный источник истины для state machine: используется
// хранилищем при каждой мутации статуса.
func CanTransition(from, to FlowStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
