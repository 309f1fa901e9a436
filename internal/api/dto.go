package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/domain"
)

// Flow DTOs

// Ограничения валидации.
const maxPromptLength = 8192

// CreateFlowRequest — запрос на запуск flow.
type CreateFlowRequest struct {
	FlowType   string         `json:"flow_type"`
	Prompt     string         `json:"prompt"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   int            `json:"priority,omitempty"`
}

// Validate проверяет запрос до обращения к хранилищу.
func (r *CreateFlowRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(r.Prompt) > maxPromptLength {
		return fmt.Errorf("prompt exceeds %d characters", maxPromptLength)
	}
	if !domain.FlowType(r.FlowType).IsValid() {
		return fmt.Errorf("invalid flow_type: %q", r.FlowType)
	}
	return nil
}

// FlowResponse — ответ с flow.
type FlowResponse struct {
	ID            uuid.UUID      `json:"id"`
	ProjectID     uuid.UUID      `json:"project_id"`
	FlowType      string         `json:"flow_type"`
	Prompt        string         `json:"prompt"`
	Status        string         `json:"status"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Priority      int            `json:"priority"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Result        string         `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime *float64       `json:"execution_time,omitempty"`
}

// FlowFromDomain конвертирует domain.Flow в FlowResponse.
func FlowFromDomain(f domain.Flow) FlowResponse {
	return FlowResponse{
		ID:            f.ID,
		ProjectID:     f.ProjectID,
		FlowType:      string(f.FlowType),
		Prompt:        f.Prompt,
		Status:        string(f.Status),
		Parameters:    f.Parameters,
		Priority:      f.Priority,
		CreatedAt:     f.CreatedAt,
		StartedAt:     f.StartedAt,
		CompletedAt:   f.CompletedAt,
		Result:        f.Result,
		Error:         f.Error,
		ExecutionTime: f.ExecutionTime,
	}
}
