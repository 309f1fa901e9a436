package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType — тип события, отправляемого клиенту.
type EventType string

const (
	// EventTypeConnection — приветственное событие при подключении.
	EventTypeConnection EventType = "connection"

	// EventTypeStatus — смена статуса flow.
	EventTypeStatus EventType = "status"

	// EventTypeStage — завершение одной стадии пайплайна.
	EventTypeStage EventType = "stage"

	// EventTypePong — ответ на клиентский ping.
	EventTypePong EventType = "pong"
)

// Event — транзиентное сообщение для Event Bus.
//
// Событие не персистится и доставляется best-effort (at-most-once)
// только подписчикам, присутствующим в момент публикации.
type Event struct {
	// FlowID — flow, к которому относится событие.
	FlowID uuid.UUID `json:"flow_id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// Payload — полезная нагрузка (зависит от типа).
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// NewStatusEvent создаёт событие смены статуса flow.
// errMsg добавляется в payload только для failed/cancelled.
func NewStatusEvent(flowID uuid.UUID, status FlowStatus, errMsg string) Event {
	payload := map[string]any{"status": string(status)}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	return Event{
		FlowID:    flowID,
		Type:      EventTypeStatus,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewStageEvent создаёт событие по результату стадии.
// Content прокидывается клиенту как carried context.
func NewStageEvent(flowID uuid.UUID, result StageResult) Event {
	payload := map[string]any{
		"stage":  string(result.StageName),
		"status": string(result.Status),
	}
	if result.Content != "" {
		payload["content"] = result.Content
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	return Event{
		FlowID:    flowID,
		Type:      EventTypeStage,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// --- Имена каналов ---

// FlowChannel возвращает имя канала для событий flow: "flow:<id>".
func FlowChannel(flowID uuid.UUID) string {
	return fmt.Sprintf("flow:%s", flowID)
}

// AgentChannel возвращает имя канала для событий агента: "agent:<id>".
func AgentChannel(agentID uuid.UUID) string {
	return fmt.Sprintf("agent:%s", agentID)
}

// NotificationsChannel возвращает имя канала уведомлений пользователя:
// "notifications:<user_id>".
func NotificationsChannel(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}
