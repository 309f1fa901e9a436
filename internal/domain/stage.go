package domain

// StageName — имя стадии пайплайна.
type StageName string

const (
	// StageStrategy — стратегия DevRel и анализ конкурентов.
	StageStrategy StageName = "strategy"

	// StageContent — генерация технического контента и примеров кода.
	StageContent StageName = "content"

	// StageCommunity — работа с сообществом: посты, ответы.
	StageCommunity StageName = "community"

	// StageAnalytics — анализ метрик кампании и рекомендации.
	StageAnalytics StageName = "analytics"
)

// StageStatus — статус результата одной стадии.
type StageStatus string

const (
	// StageStatusCompleted — стадия успешно завершилась.
	StageStatusCompleted StageStatus = "completed"

	// StageStatusFailed — вызов генерации завершился ошибкой.
	StageStatusFailed StageStatus = "failed"
)

// StageResult — эфемерный результат одной стадии.
//
// Не персистится как отдельная сущность: передаётся по значению
// от стадии к стадии как дополнительный контекст и никогда
// не мутируется конкурентно.
type StageResult struct {
	// StageName — имя выполненной стадии.
	StageName StageName `json:"stage_name"`

	// Status — completed или failed.
	Status StageStatus `json:"status"`

	// Content — сгенерированный текст (для completed).
	Content string `json:"content,omitempty"`

	// Error — причина ошибки (для failed).
	Error string `json:"error,omitempty"`
}

// StagesFor возвращает упорядоченный список стадий для типа flow.
//
// Композитный пайплайн выполняет все четыре стадии строго по порядку,
// одиночные типы — одну соответствующую стадию. Для неизвестного
// типа возвращает nil.
func StagesFor(flowType FlowType) []StageName {
	switch flowType {
	case FlowTypeStrategy:
		return []StageName{StageStrategy}
	case FlowTypeContent:
		return []StageName{StageContent}
	case FlowTypeCommunity:
		return []StageName{StageCommunity}
	case FlowTypeComposite:
		return []StageName{StageStrategy, StageContent, StageCommunity, StageAnalytics}
	default:
		return nil
	}
}
