package llm

import "fmt"

// Причины отказа генерации. Значение попадает в поле error потока,
// поэтому формат фиксирован и не содержит деталей провайдера.
const (
	ReasonTimeout   = "timeout"
	ReasonQuota     = "quota"
	ReasonMalformed = "malformed response"
)

// GenerationError — нормализованная ошибка генерации. Reason — короткая
// машиночитаемая причина, Err — исходная ошибка провайдера (может быть nil).
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
